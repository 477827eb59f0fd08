// Package crawl discovers series by walking the portal's category tree.
//
// A Frontier runs a breadth-first traversal from one root category. Each
// category page yields series links, sub-category links and an optional
// next page; series are deduplicated by absolute URL while crawling and by
// series id in every snapshot written to disk.
//
// Visited sets belong to the Frontier, so two crawls never share state.
package crawl
