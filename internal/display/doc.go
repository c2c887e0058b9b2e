// Package display renders permit state for the terminal.
//
// # Warning Panels
//
// Blocking answers and outstanding questions are shown as a warning panel:
//
//	panel := display.BlockingPanel(ev.Violations)
//	panel.Display(os.Stderr)
//
// A panel with no items renders nothing, so callers need not check first.
//
// # Summaries
//
// PermitLine prints one permit per line for listings; EvaluationSummary prints
// the per-questionnaire outcome of an evaluation pass.
//
// Colors come from fatih/color and are dropped automatically when the output
// is not a terminal or NO_COLOR is set.
package display
