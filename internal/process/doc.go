// Package process owns a single child process: its argument vector, working
// directory and one pipe shared by stdout and stderr.
//
// A Handle releases its pipe and reaps its child exactly once, whichever of
// Wait or Close runs first. Kill signals the child's whole process group so
// shells started with "-c" take their children down with them.
package process
