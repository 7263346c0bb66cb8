// Package pipeline runs the governance decision pipeline for one request:
//
//	evaluate_policy -> route -> [llm_assess] -> build_decision
//
// The policy stage resolves a decision from the rule snapshot. Routing skips the
// reasoning engine when policy alone demands escalation at critical risk. The
// assembler reconciles both signals into a DecisionCard, substituting conservative
// defaults for anything the untrusted assessment got wrong.
//
// A card built without an assessment is never left with placeholder text: its
// reasoning names the matched rules and its recommended action follows from the
// resolved decision, instead of "No reasoning provided." and an empty action.
package pipeline
