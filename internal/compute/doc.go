// Package compute provides the compute engine that performs the actual
// tensor and model work: tensor creation, eager op execution, model loading,
// and session runs. The Engine interface is the seam between the serving
// core and the math; the local engine is a pure-Go implementation driven by
// an op registry and JSON model manifests.
package compute
