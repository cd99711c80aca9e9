// Package ml provides the machine-learning capability interfaces the NLU
// engine trains and predicts through, together with in-process
// implementations: a linear-chain CRF sequence model, a one-vs-rest linear
// classifier, and a k-means clusterer.
//
// The engine depends only on the interfaces; the implementations serialize to
// opaque blobs so trained state can live inside a persisted Model.
package ml

import "context"

// FeatureSequence is one token sequence described by categorical features:
// element i holds the active feature names for token i.
type FeatureSequence [][]string

// SequenceModel is the sequence-labeling capability: train on feature/label
// sequence pairs, persist to an opaque blob, reopen, and decode the most
// likely label sequence for new input.
type SequenceModel interface {
	// Train fits the model and returns its serialized form.  The two slices
	// must have equal length and pairwise-equal sequence lengths.
	Train(ctx context.Context, features []FeatureSequence, labels [][]string) ([]byte, error)

	// Open loads previously trained state from a blob produced by Train.
	Open(blob []byte) error

	// Predict returns the most likely label per position.  The model must
	// have been trained or opened first.
	Predict(features FeatureSequence) ([]string, error)
}

// TrainPoint is one labeled coordinate vector for classifier training.
type TrainPoint struct {
	Label       string    `json:"label"`
	Coordinates []float64 `json:"coordinates"`
}

// RankedLabel is one classifier prediction, highest score first.
type RankedLabel struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// LinearClassifier is the multi-class classification capability.  Train
// returns serialized state; Predict is stateless with respect to the
// classifier value itself, operating on the serialized form, so one
// classifier instance can serve many persisted models concurrently.
type LinearClassifier interface {
	Train(ctx context.Context, points []TrainPoint) ([]byte, error)
	Predict(serialized []byte, coordinates []float64) ([]RankedLabel, error)
}

// ClusterOptions carries clustering tunables.
type ClusterOptions struct {
	// MaxIterations bounds the Lloyd iterations; 0 means the default.
	MaxIterations int

	// Seed makes centroid initialization deterministic when non-zero.
	Seed int64
}

// Clustering is the result of a cluster run: the centroids, in a stable
// order, plus assignment of arbitrary vectors to their nearest centroid.
type Clustering struct {
	Centroids [][]float64 `json:"centroids"`
}

// Clusterer is the vector-clustering capability.
type Clusterer interface {
	Cluster(ctx context.Context, vectors [][]float64, k int, opts ClusterOptions) (*Clustering, error)
}
