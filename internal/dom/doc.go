// Package dom models a live web page for the page automation engine: an HTML
// tree parsed with golang.org/x/net/html, CSS selector queries via cascadia,
// a computed-style and block-flow layout pass, form control state, synthetic
// event dispatch and mutation records.
//
// A Document is not safe for concurrent use. All reads and writes happen on
// the page's Loop, which mirrors the single-threaded page context of a browser.
package dom
