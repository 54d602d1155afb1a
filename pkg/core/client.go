package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/muika-lab/memekeeper/pkg/blob"
	fsBlob "github.com/muika-lab/memekeeper/pkg/blob/fs"
	"github.com/muika-lab/memekeeper/pkg/embedder"
	openaiEmbedder "github.com/muika-lab/memekeeper/pkg/embedder/openai"
	"github.com/muika-lab/memekeeper/pkg/llm"
	openaiLLM "github.com/muika-lab/memekeeper/pkg/llm/openai"
	"github.com/muika-lab/memekeeper/pkg/match"
	"github.com/muika-lab/memekeeper/pkg/safety"
	"github.com/muika-lab/memekeeper/pkg/storage"
	mysqlStore "github.com/muika-lab/memekeeper/pkg/storage/mysql"
	postgresStore "github.com/muika-lab/memekeeper/pkg/storage/postgres"
	sqliteStore "github.com/muika-lab/memekeeper/pkg/storage/sqlite"
	"github.com/muika-lab/memekeeper/pkg/tagging"
)

// Client is the main memekeeper client.
//
// It curates a bounded store of image snippets ("memes") on behalf of a
// conversational agent: images seen in chat are probabilistically admitted
// after tagging and a security check, and stored memes are probabilistically
// attached to outgoing replies when one matches the reply's emotional tone.
//
// The two entry points are ObserveImage (inbound images) and AttachToReply
// (outbound replies). Both are quiet by design: a gate that stays closed, a
// duplicate, a rejected candidate, or a failed capability call all produce a
// nil meme and no error. Only storage and blob I/O problems surface as
// errors.
//
// The client is safe for concurrent use from multiple goroutines.
//
// Example usage:
//
//	config, _ := core.LoadConfigFromEnv()
//	client, _ := core.NewClient(config)
//	defer client.Close()
//
//	saved, _ := client.ObserveImage(ctx, imageBytes)
//	meme, _ := client.AttachToReply(ctx, userMessage, reply)
//	if meme != nil {
//	    image, _ := client.Image(ctx, meme)
//	    // send image alongside the reply
//	}
type Client struct {
	// config contains the validated client configuration.
	config *Config

	// store persists meme metadata.
	store storage.Store

	// blobs holds the image bytes behind each record.
	blobs blob.Store

	// llm backs tagging, the security filter, and the llm strategy.
	llm llm.Provider

	// embedder backs the cosine strategy (nil for other methods).
	embedder embedder.Provider

	// retention applies the probability gates and the capacity policy.
	retention *RetentionController

	// extractor derives descriptions and emotion tags from images.
	extractor *tagging.Extractor

	// filter screens candidates before admission.
	filter *safety.Filter

	// strategy matches stored memes against outgoing replies.
	strategy match.Strategy

	// snowflakeNode generates unique IDs for memes.
	snowflakeNode *snowflake.Node

	logger *slog.Logger
}

// NewClient creates a new memekeeper client.
//
// The configuration is validated first; an invalid configuration fails here,
// never at request time. The metadata store (SQLite, PostgreSQL, or MySQL),
// the filesystem blob store, the LLM provider, and - for the cosine method -
// the embedding provider are built from the configuration unless overridden
// by options.
//
// Example:
//
//	client, err := core.NewClient(cfg,
//	    core.WithLogger(logger),
//	    core.WithRandSource(rand.NewSource(time.Now().UnixNano())),
//	)
func NewClient(cfg *Config, opts ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := applyClientOptions(opts)

	logger := options.logger
	if logger == nil {
		logger = slog.Default()
	}

	store := options.store
	if store == nil {
		var err error
		if store, err = initStorage(cfg.Storage); err != nil {
			return nil, err
		}
	}

	blobs := options.blobs
	if blobs == nil {
		var err error
		if blobs, err = fsBlob.NewStore(cfg.Blob.Dir); err != nil {
			return nil, NewMemeError("NewClient", err)
		}
	}

	llmProvider := options.llm
	if llmProvider == nil {
		var err error
		if llmProvider, err = initLLM(cfg.LLM); err != nil {
			return nil, err
		}
	}

	embedderProvider := options.embedder
	if embedderProvider == nil && cfg.SimilarityMethod == MethodCosine {
		var err error
		if embedderProvider, err = initEmbedder(cfg.Embedder); err != nil {
			return nil, err
		}
	}

	strategy := options.strategy
	if strategy == nil {
		var err error
		if strategy, err = initStrategy(cfg, llmProvider, embedderProvider, logger); err != nil {
			return nil, err
		}
	}

	source := options.randSource
	if source == nil {
		source = rand.NewSource(time.Now().UnixNano())
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, NewMemeError("NewClient", err)
	}

	return &Client{
		config:        cfg,
		store:         store,
		blobs:         blobs,
		llm:           llmProvider,
		embedder:      embedderProvider,
		retention:     NewRetentionController(cfg, store, source, logger),
		extractor:     tagging.NewExtractor(llmProvider, cfg.CapabilityTimeout, logger),
		filter:        safety.NewFilter(llmProvider, cfg.EnableSecurityCheck, cfg.CapabilityTimeout, logger),
		strategy:      strategy,
		snowflakeNode: node,
		logger:        logger,
	}, nil
}

// ObserveImage considers an inbound image for admission into the store.
//
// The pipeline, in order:
//  1. Probabilistic save gate - most images are skipped.
//  2. Duplicate check against the content hash of the bytes.
//  3. Security check - an LLM verdict on whether the image is safe to
//     re-send; rejections are terminal and nothing is persisted.
//  4. Tagging - the LLM describes the image and derives emotion tags.
//  5. Blob write, optional description embedding, and capacity-bounded
//     insertion (evicting the oldest meme when the store is full).
//
// A skipped, duplicate, or rejected image returns (nil, nil). Tagging
// failures do not block admission: the meme is stored untagged and simply
// never matches. Only storage and blob errors are returned.
func (c *Client) ObserveImage(ctx context.Context, image []byte) (*Meme, error) {
	if len(image) == 0 {
		return nil, NewMemeError("ObserveImage", fmt.Errorf("empty image"))
	}

	if !c.retention.ShouldSave() {
		return nil, nil
	}

	hash := blob.Digest(image)
	existing, err := c.store.FindByHash(ctx, hash)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, NewMemeError("ObserveImage", wrapStorageError(err))
	}
	if existing != nil {
		c.logger.Debug("skipping duplicate image", "hash", hash, "existing_id", existing.ID)
		return nil, nil
	}

	// Order matters: the security verdict comes before any persistence, so a
	// rejected image never touches disk.
	if !c.filter.Approve(ctx, image) {
		c.logger.Info("image rejected by security check", "hash", hash)
		return nil, nil
	}

	description, tags := c.extractor.DescribeImage(ctx, image)

	ref, err := c.blobs.Put(ctx, image)
	if err != nil {
		return nil, NewMemeError("ObserveImage", err)
	}

	var embedding []float64
	if c.embedder != nil && description != "" {
		embedding = c.embedDescription(ctx, description)
	}

	record := &storage.Meme{
		ID:          c.snowflakeNode.Generate().Int64(),
		BlobRef:     ref,
		Hash:        hash,
		Description: description,
		Tags:        tags,
		Embedding:   embedding,
		Valid:       true,
		CreatedAt:   time.Now(),
	}

	if err := c.retention.Admit(ctx, record); err != nil {
		return nil, err
	}

	c.logger.Info("meme admitted", "id", record.ID, "tags", tags)
	return fromStorageMeme(record), nil
}

// AttachToReply picks a stored meme matching the outgoing reply, or nil.
//
// The emission gate is checked first: while the store holds fewer than
// MinMemes, or when the probability draw stays closed, no candidates are
// even loaded. Otherwise the reply's parenthesized emotion keywords form the
// query, the most recent GeneralMaxQuery memes are the candidate pool, and
// the configured strategy picks at most one. A chosen meme has its use count
// bumped before being returned.
//
// Returns (nil, nil) when the gate is closed, the pool is empty, or no
// candidate clears the strategy's bar. Strategy-internal capability failures
// never surface here; they degrade to no attachment.
func (c *Client) AttachToReply(ctx context.Context, userMessage, reply string) (*Meme, error) {
	send, err := c.retention.ShouldSend(ctx)
	if err != nil {
		return nil, err
	}
	if !send {
		return nil, nil
	}

	candidates, err := c.store.GetAll(ctx, c.config.GeneralMaxQuery)
	if err != nil {
		return nil, NewMemeError("AttachToReply", wrapStorageError(err))
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	query := match.Query{
		Tags:        tagging.TagsFromText(reply),
		ReplyText:   reply,
		UserMessage: userMessage,
	}

	id, ok := c.strategy.Match(ctx, query, candidates)
	if !ok {
		return nil, nil
	}

	var chosen *storage.Meme
	for _, candidate := range candidates {
		if candidate.ID == id {
			chosen = candidate
			break
		}
	}
	if chosen == nil {
		// A strategy returning an ID outside its candidate pool is a bug in
		// the strategy; treat it as no match rather than surfacing garbage.
		c.logger.Warn("strategy returned unknown candidate", "id", id)
		return nil, nil
	}

	if err := c.store.Touch(ctx, id); err != nil {
		// The match already succeeded; a failed bookkeeping update should
		// not cost the caller the attachment.
		c.logger.Warn("failed to update meme usage", "id", id, "error", err)
	}

	c.logger.Debug("meme attached", "id", id, "tags", chosen.Tags)
	return fromStorageMeme(chosen), nil
}

// Get retrieves a meme by ID.
//
// Returns ErrNotFound (wrapped) when no valid meme has that ID.
func (c *Client) Get(ctx context.Context, id int64) (*Meme, error) {
	record, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, NewMemeError("Get", wrapStorageError(err))
	}
	return fromStorageMeme(record), nil
}

// Image loads the stored image bytes for a meme.
func (c *Client) Image(ctx context.Context, meme *Meme) ([]byte, error) {
	if meme == nil {
		return nil, NewMemeError("Image", fmt.Errorf("nil meme"))
	}
	data, err := c.blobs.Get(ctx, meme.BlobRef)
	if err != nil {
		return nil, NewMemeError("Image", err)
	}
	return data, nil
}

// Delete removes a meme: the record is marked invalid and the image bytes
// are removed from the blob store.
//
// Deleting an unknown ID returns ErrNotFound (wrapped).
func (c *Client) Delete(ctx context.Context, id int64) error {
	record, err := c.store.Get(ctx, id)
	if err != nil {
		return NewMemeError("Delete", wrapStorageError(err))
	}

	if err := c.retention.Delete(ctx, id); err != nil {
		return err
	}

	if err := c.blobs.Remove(ctx, record.BlobRef); err != nil {
		// The record is already gone; a stale blob is an acceptable leak
		// that the next ValidateAll-style sweep or manual cleanup handles.
		c.logger.Warn("failed to remove blob", "id", id, "ref", record.BlobRef, "error", err)
	}

	return nil
}

// List returns stored memes most-recent-first. A limit of 0 returns all.
func (c *Client) List(ctx context.Context, limit int) ([]*Meme, error) {
	records, err := c.store.GetAll(ctx, limit)
	if err != nil {
		return nil, NewMemeError("List", wrapStorageError(err))
	}
	return fromStorageMemes(records), nil
}

// Count returns the number of valid memes in the store.
func (c *Client) Count(ctx context.Context) (int, error) {
	count, err := c.store.Count(ctx)
	if err != nil {
		return 0, NewMemeError("Count", wrapStorageError(err))
	}
	return count, nil
}

// ValidateAll prunes records whose image bytes have gone missing.
//
// Blob files can disappear out from under the store (disk cleanup, restored
// backups). Run this at startup so matching never picks a meme that cannot
// actually be sent. Returns the number of records pruned.
func (c *Client) ValidateAll(ctx context.Context) (int, error) {
	records, err := c.store.GetAll(ctx, 0)
	if err != nil {
		return 0, NewMemeError("ValidateAll", wrapStorageError(err))
	}

	pruned := 0
	for _, record := range records {
		exists, err := c.blobs.Exists(ctx, record.BlobRef)
		if err != nil {
			return pruned, NewMemeError("ValidateAll", err)
		}
		if exists {
			continue
		}
		if err := c.retention.Delete(ctx, record.ID); err != nil {
			return pruned, err
		}
		c.logger.Warn("pruned meme with missing blob", "id", record.ID, "ref", record.BlobRef)
		pruned++
	}

	return pruned, nil
}

// Close closes the client and releases all resources.
func (c *Client) Close() error {
	var errs []error

	if c.store != nil {
		if err := c.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if c.llm != nil {
		if err := c.llm.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if c.embedder != nil {
		if err := c.embedder.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errs[0]
	}

	return nil
}

// embedDescription embeds a meme description at admission time.
//
// Embedding is best-effort: a failed call leaves the meme without a vector,
// which the cosine strategy simply skips.
func (c *Client) embedDescription(ctx context.Context, description string) []float64 {
	embedCtx, cancel := context.WithTimeout(ctx, c.config.CapabilityTimeout)
	defer cancel()

	vector, err := c.embedder.Embed(embedCtx, description)
	if err != nil {
		c.logger.Warn("failed to embed description", "error", err)
		return nil
	}
	return vector
}

// initStorage initializes the metadata store backend.
func initStorage(cfg StorageConfig) (storage.Store, error) {
	switch cfg.Provider {
	case "sqlite":
		return sqliteStore.NewClient(&sqliteStore.Config{
			DBPath:    getString(cfg.Config, "db_path", "./memekeeper.db"),
			TableName: getString(cfg.Config, "table_name", "memes"),
		})
	case "postgres":
		return postgresStore.NewClient(&postgresStore.Config{
			Host:      getString(cfg.Config, "host", "localhost"),
			Port:      getInt(cfg.Config, "port", 5432),
			User:      getString(cfg.Config, "user", "postgres"),
			Password:  getString(cfg.Config, "password", ""),
			DBName:    getString(cfg.Config, "db_name", "memekeeper"),
			TableName: getString(cfg.Config, "table_name", "memes"),
			SSLMode:   getString(cfg.Config, "ssl_mode", "disable"),
		})
	case "mysql":
		return mysqlStore.NewClient(&mysqlStore.Config{
			Host:      getString(cfg.Config, "host", "127.0.0.1"),
			Port:      getInt(cfg.Config, "port", 3306),
			User:      getString(cfg.Config, "user", "root"),
			Password:  getString(cfg.Config, "password", ""),
			DBName:    getString(cfg.Config, "db_name", "memekeeper"),
			TableName: getString(cfg.Config, "table_name", "memes"),
		})
	default:
		return nil, NewMemeError("initStorage", fmt.Errorf("%w: unknown storage provider %q", ErrInvalidConfig, cfg.Provider))
	}
}

// initLLM initializes the LLM provider.
func initLLM(cfg LLMConfig) (llm.Provider, error) {
	return openaiLLM.NewClient(&openaiLLM.Config{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
	})
}

// initEmbedder initializes the embedding provider, wrapped in an in-memory
// cache so repeated reply texts do not re-embed.
func initEmbedder(cfg EmbedderConfig) (embedder.Provider, error) {
	client, err := openaiEmbedder.NewClient(&openaiEmbedder.Config{
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		BaseURL:    cfg.BaseURL,
		Dimensions: cfg.Dimensions,
	})
	if err != nil {
		return nil, err
	}
	return embedder.NewCachingProvider(client, cfg.CacheTTL), nil
}

// initStrategy selects the match strategy for the configured method.
func initStrategy(cfg *Config, llmProvider llm.Provider, embedderProvider embedder.Provider, logger *slog.Logger) (match.Strategy, error) {
	switch cfg.SimilarityMethod {
	case MethodLevenshtein:
		return match.NewLevenshteinStrategy(cfg.AcceptFloor, logger), nil
	case MethodLLM:
		return match.NewLLMStrategy(llmProvider, cfg.LLMMaxQuery, cfg.CapabilityTimeout, logger), nil
	case MethodCosine:
		return match.NewCosineStrategy(embedderProvider, cfg.AcceptFloor, cfg.CapabilityTimeout, logger), nil
	default:
		return nil, NewMemeError("initStrategy", fmt.Errorf("%w: unknown similarity method %q", ErrInvalidConfig, cfg.SimilarityMethod))
	}
}

// wrapStorageError translates storage failures into this package's error
// taxonomy: the backend's not-found sentinel becomes ErrNotFound, and every
// other failure is categorized as ErrStorageOperation with the driver error
// kept in the chain.
func wrapStorageError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %w", ErrStorageOperation, err)
}

// getString reads an optional string from a provider config map.
func getString(config map[string]interface{}, key, defaultValue string) string {
	if v, ok := config[key].(string); ok && v != "" {
		return v
	}
	return defaultValue
}

// getInt reads an optional integer from a provider config map.
func getInt(config map[string]interface{}, key string, defaultValue int) int {
	switch v := config[key].(type) {
	case int:
		return v
	case float64:
		// JSON numbers decode as float64.
		return int(v)
	}
	return defaultValue
}
