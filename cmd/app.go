package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/tanpawarit/agentic-support/agent/agents/support"
	"github.com/tanpawarit/agentic-support/agent/contract"
	"github.com/tanpawarit/agentic-support/agent/order"
	"github.com/tanpawarit/agentic-support/agent/policy"
	"github.com/tanpawarit/agentic-support/agent/tool"
	configx "github.com/tanpawarit/agentic-support/pkg/config"
	llmx "github.com/tanpawarit/agentic-support/pkg/llm"
)

// app holds the components shared by the subcommands. Fields stay nil until
// the matching open call succeeds.
type app struct {
	orders    *order.Store
	embedder  llmx.Embedding
	index     contract.VectorIndex
	retriever *policy.Retriever
	policyCfg *policy.Config
}

func (a *app) Close() {
	if a.index != nil {
		_ = a.index.Close()
	}
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.orders != nil {
		_ = a.orders.Close()
	}
}

func (a *app) openOrders(ctx context.Context) error {
	cfg, err := configx.New[order.StoreConfig]("ORDERS")
	if err != nil {
		return err
	}
	store, err := order.Open(ctx, *cfg)
	if err != nil {
		return err
	}
	if _, err := store.Seed(ctx); err != nil {
		_ = store.Close()
		return err
	}
	a.orders = store
	return nil
}

func (a *app) openRetriever(ctx context.Context) error {
	cfg, err := configx.New[policy.Config]("POLICY")
	if err != nil {
		return err
	}
	embedCfg, err := configx.New[llmx.EmbeddingConfig]("EMBEDDING")
	if err != nil {
		return err
	}
	embedder, err := llmx.OpenEmbedding(ctx, *embedCfg)
	if err != nil {
		return err
	}

	index, err := policy.OpenIndex(*cfg)
	if err != nil {
		_ = embedder.Close()
		return err
	}
	retriever, err := policy.NewRetriever(index, embedder,
		policy.WithSplitter(policy.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)),
		policy.WithBatchSize(cfg.BatchSize),
		policy.WithConcurrency(cfg.EmbedConcurrency),
		policy.WithEmbedderName(embedCfg.Provider+"/"+embedder.Name()),
	)
	if err != nil {
		_ = index.Close()
		_ = embedder.Close()
		return err
	}

	a.embedder, a.index, a.retriever, a.policyCfg = embedder, index, retriever, cfg
	return nil
}

// catalog builds the tool catalog. Without a retriever, lookup_policy
// reports the reason it is unavailable as an upstream fault.
func (a *app) catalog(retrieverErr error) (*tool.Catalog, error) {
	var lookup contract.PolicyLookup = unavailablePolicies{err: retrieverErr}
	topK := tool.DefaultPolicyTopK
	if a.retriever != nil {
		lookup = a.retriever
		topK = a.policyCfg.TopK
	}
	return tool.NewCatalog(a.orders, lookup, tool.WithPolicyTopK(topK))
}

// bootstrap opens every component and builds the policy index when needed.
func (a *app) bootstrap(ctx context.Context) (*support.Service, error) {
	if err := a.openOrders(ctx); err != nil {
		return nil, err
	}
	if err := a.openRetriever(ctx); err != nil {
		return nil, err
	}
	if _, err := a.retriever.BuildIndex(ctx, a.policyCfg.DocumentPath); err != nil {
		return nil, fmt.Errorf("build policy index: %w", err)
	}

	catalog, err := a.catalog(nil)
	if err != nil {
		return nil, err
	}

	chatCfg, err := configx.New[llmx.ChatConfig]("LLM")
	if err != nil {
		return nil, err
	}
	chatModel, err := chatCfg.New(ctx)
	if err != nil {
		return nil, err
	}

	agentCfg, err := configx.New[support.Config]("AGENT")
	if err != nil {
		return nil, err
	}
	return support.New(ctx, chatModel, catalog, *agentCfg)
}

type unavailablePolicies struct {
	err error
}

func (u unavailablePolicies) Query(context.Context, string, int) ([]string, error) {
	if u.err == nil {
		return nil, errors.New("policy retriever is not configured")
	}
	return nil, fmt.Errorf("policy retriever is not configured: %w", u.err)
}
