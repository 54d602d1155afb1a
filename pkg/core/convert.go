package core

import "github.com/muika-lab/memekeeper/pkg/storage"

// fromStorageMeme converts a storage record to a core.Meme.
func fromStorageMeme(meme *storage.Meme) *Meme {
	if meme == nil {
		return nil
	}
	return &Meme{
		ID:          meme.ID,
		BlobRef:     meme.BlobRef,
		Hash:        meme.Hash,
		Description: meme.Description,
		Tags:        meme.Tags,
		Embedding:   meme.Embedding,
		UseCount:    meme.UseCount,
		CreatedAt:   meme.CreatedAt,
		LastUsedAt:  meme.LastUsedAt,
	}
}

// fromStorageMemes converts a slice of storage records.
func fromStorageMemes(memes []*storage.Meme) []*Meme {
	out := make([]*Meme, len(memes))
	for i, meme := range memes {
		out[i] = fromStorageMeme(meme)
	}
	return out
}
