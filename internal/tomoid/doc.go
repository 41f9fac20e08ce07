// Package tomoid derives canonical tomogram identifiers from filenames.
//
// A Matcher holds an ordered list of pure rules. Extract walks the rules that
// can produce an identifier (prefix stripping, then a trailing numeric or
// compound-numeric fallback); Match walks the membership rules and lets the
// first rule with an opinion decide whether a file belongs to a given
// identifier. Compound identifiers such as "3_2" only ever match the complete
// token, never "3" or "2" alone.
package tomoid
