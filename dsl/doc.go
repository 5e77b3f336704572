// Package dsl compiles workflow syntax into executable graphs.
//
// The syntax describes steps connected by three operators:
//
//	analyzer:"scan the code":bugs -> fixer:"fix {bugs}":fixed
//	[lint || test || build] -> @review -> deploy
//	build (if failed)~> cleanup
//
// `->` sequences steps, `||` runs them in parallel, and `~>` adds a
// conditional hop, defaulting to "if failed" when no `(if ...)` annotation
// precedes it. `@label` marks a checkpoint that always pauses for an
// operator. `:"..."` binds an instruction to a step, a trailing `:name`
// captures its output into a variable, and `{name}` in a later instruction
// interpolates it back in.
//
// Compilation is Tokenize -> BuildAST -> Lower -> Validate ->
// AnalyzeVariables; Compile chains them all.
package dsl
