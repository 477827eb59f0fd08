// Package monitor watches the operation log.
//
// It computes error rates over trailing windows, raises an alert when the
// last day's error count reaches a threshold, checks database integrity,
// writes JSON reports and exports gauges for a node-exporter textfile
// collector. Retries of failed series are delegated to a Retrier.
package monitor
