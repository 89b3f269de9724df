/*

Process of compilation

Checked Program Tree ->
	irgen ->
Block Intermediate Representation (ir) ->
	analyze, opt ->
Optimized IR ->
	asmgen ->
Symbolic Assembly (asm) ->
	back: allocate, check, emit ->
Bytecode + Data Section + Source Map (obj)

Targets differ only at the check step: scripts, predicates and
contracts each allow a different slice of the instruction set.

*/
package compiler
