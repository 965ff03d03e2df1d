// Package contact records contact form submissions.
//
// Submissions are kept in a single pretty-printed JSON array of
// {"id","name","email","message","date"} objects. Each submission rewrites the
// whole file through a temp file and rename.
package contact
