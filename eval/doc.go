// Package eval scores RAG answers with a grading model.
//
// Four metrics are provided, each in [0, 1]:
//
//   - faithfulness: share of the answer's statements supported by the contexts
//   - context_precision: average precision of the contexts that helped reach the ground truth
//   - context_recall: share of ground-truth sentences attributable to the contexts
//   - answer_relevancy: similarity between the question and questions regenerated from the answer
//
// The grading model is asked for JSON. An Evaluator runs the metrics
// concurrently and returns a Result keyed by metric name.
package eval
