// Package phases provides the processors behind the eight vulntune phases:
// parsing, vulnerability-analysis, rag-enhancement, analysis-summary,
// narrativization, dataset-build, training and upload.
//
// The processors from parsing through dataset-build are deterministic for
// identical inputs and configuration, so running one of them in isolation
// produces the same bytes as the same step of a full run. Upload receipts
// carry the run id. Processors read and write through the artifact store's
// filesystem; only the training command touches the OS directly.
//
// Text generation, training numerics and the registry transport sit behind
// the [Narrator], [Trainer] and [RegistryFactory] seams. [Default] wires the
// built-in implementations unless [Deps] overrides them.
package phases
