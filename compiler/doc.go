/*
Package compiler drives one MiniJava program through the pipeline.

	AST (json) ->
		analyze ->
	Checked AST (types, scopes) ->
		front ->
	Three Address Code (ir) ->
		back | llvm ->
	Assembly Text ->
		nasm, ld ->
	Binary Executable

TAC can also be executed directly by package run.
*/
package compiler
