package retrieve

import (
	"context"
	"fmt"

	"github.com/siherrmann/docpipe/helper"
	"github.com/siherrmann/docpipe/model"
)

// Retriever returns ranked reference passages for a query. It is a pure
// lookup with no side effects; the pipeline treats it as an external
// collaborator and tolerates failures by degrading to an empty passage list.
type Retriever interface {
	Retrieve(ctx context.Context, query string, count int) ([]*model.Passage, error)
}

// EmbedFunc is a function that generates embeddings for text
type EmbedFunc func(text string) ([]float32, error)

// PassageSearcher is the similarity lookup the vector retriever runs on,
// implemented by database.PassagesDBHandler.
type PassageSearcher interface {
	SelectPassagesBySimilarity(embedding []float32, topK int) ([]*model.Passage, error)
}

// VectorRetriever retrieves passages by embedding the query and running a
// cosine similarity search against the stored reference corpus.
type VectorRetriever struct {
	passages PassageSearcher
	embed    EmbedFunc
}

// NewVectorRetriever creates a retriever over the given passage searcher and
// embedder.
func NewVectorRetriever(passages PassageSearcher, embed EmbedFunc) (*VectorRetriever, error) {
	if passages == nil {
		return nil, helper.NewError("retriever validation", fmt.Errorf("passage searcher is nil"))
	}
	if embed == nil {
		return nil, helper.NewError("retriever validation", fmt.Errorf("embedder is nil"))
	}
	return &VectorRetriever{
		passages: passages,
		embed:    embed,
	}, nil
}

// Retrieve embeds the query and returns the count most similar passages.
func (r *VectorRetriever) Retrieve(ctx context.Context, query string, count int) ([]*model.Passage, error) {
	if count <= 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	embedding, err := r.embed(query)
	if err != nil {
		return nil, helper.NewError("generate query embedding", err)
	}

	passages, err := r.passages.SelectPassagesBySimilarity(embedding, count)
	if err != nil {
		return nil, helper.NewError("similarity search", err)
	}

	return passages, nil
}
