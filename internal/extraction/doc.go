// Package extraction turns conversation transcripts into typed context items.
//
// Five classifiers scan a transcript independently:
//   - CodeClassifier: fenced code blocks with language and line count
//   - PhraseClassifier for decisions: "decided to", "the approach is", "we'll", ...
//   - PhraseClassifier for requirements: modal obligations and "Requirement:" labels
//   - ErrorClassifier: error-labelled sentences plus stack-trace blocks
//   - DiscussionClassifier: long paragraphs that carry none of the other signals
//
// Phrase tables are plain data (see patterns.go) and can be replaced through
// Config. Prose classifiers run on a view of the transcript in which fenced
// code is blanked out, so byte offsets stay valid across every classifier.
//
// The Extractor runs the classifiers, scores each candidate with the Scorer,
// summarizes items above the token ceiling, tags them, and hands the result to
// a Linker (normally relationship.Detector) for edge inference.
//
//	ex, err := extraction.NewExtractor(extraction.DefaultConfig(), extraction.Deps{Logger: logger})
//	res, err := ex.Extract(ctx, transcript, chatID, projectID)
//	res = res.Cap(50)
package extraction
