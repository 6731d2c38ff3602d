// Package secrets redacts credentials from transcripts before extraction.
//
// Rules are regular expressions gated by optional keywords. The gitleaks
// default rule set runs alongside them when enabled. Findings carry the rule
// and position but never the matched value.
package secrets
