// Package scaffold turns a build brief into staged site content.
//
// The Generator interface is the seam where a smarter content engine
// would plug in; the built-in TemplateGenerator stages the starter
// site (index.html, script.js, style.css, README.md, LICENSE) plus any
// decoded attachments. Generators write into a staging.Area and never
// talk to the repository host directly.
package scaffold
