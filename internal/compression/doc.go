// Package compression produces condensed forms of context items.
//
// Two algorithms are available:
//
//   - Lines keeps the first N lines of the content and appends a
//     "... (+N more lines)" marker. This is the default and what extraction
//     uses for oversized items.
//   - Extractive selects the highest scoring sentences (position, length and
//     inverse word frequency) up to a token target, in original order.
//
// Every summarizer guarantees that a returned summary is estimated at
// strictly fewer tokens than the input; when it cannot do that it reports
// ok=false and the caller keeps the full content.
package compression
