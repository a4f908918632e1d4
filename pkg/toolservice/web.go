// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package toolservice

import "context"

// WebResult is one web search hit.
type WebResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Content string `json:"content,omitempty"`
}

// CrawledPage is one fetched page.
type CrawledPage struct {
	URL      string         `json:"url"`
	Title    string         `json:"title,omitempty"`
	Content  string         `json:"content"`
	HTML     string         `json:"html,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SearchWeb runs a web search.
func (c *Client) SearchWeb(ctx context.Context, query string, maxResults int, userID string) ([]WebResult, error) {
	out := &struct {
		Results []WebResult `json:"results"`
	}{}
	err := c.callDegraded(ctx, "search_web", map[string]any{
		"query":       query,
		"max_results": maxResults,
		"user_id":     userID,
	}, out)
	return out.Results, err
}

// CrawlWebContent fetches the given URLs.
func (c *Client) CrawlWebContent(ctx context.Context, urls []string, userID string) ([]CrawledPage, error) {
	out := &struct {
		Results []CrawledPage `json:"results"`
	}{}
	err := c.callDegraded(ctx, "crawl_web_content", map[string]any{
		"urls":    urls,
		"user_id": userID,
	}, out)
	return out.Results, err
}

// CrawlReport aggregates a recursive crawl.
type CrawlReport struct {
	Pages        []CrawledPage `json:"pages"`
	PagesCrawled int           `json:"pages_crawled"`
	PagesFailed  int           `json:"pages_failed"`
}

// CrawlWebsiteRecursive walks a site breadth-first from a start URL.
func (c *Client) CrawlWebsiteRecursive(ctx context.Context, startURL string, maxPages, maxDepth int, userID string) (*CrawlReport, error) {
	out := &CrawlReport{}
	err := c.callDegraded(ctx, "crawl_website_recursive", map[string]any{
		"start_url": startURL,
		"max_pages": maxPages,
		"max_depth": maxDepth,
		"user_id":   userID,
	}, out)
	return out, err
}

// CrawlSiteRequest is a criteria-directed site crawl.
type CrawlSiteRequest struct {
	SeedURL           string `json:"seed_url"`
	QueryCriteria     string `json:"query_criteria"`
	MaxPages          int    `json:"max_pages,omitempty"`
	MaxDepth          int    `json:"max_depth,omitempty"`
	AllowedPathPrefix string `json:"allowed_path_prefix,omitempty"`
	IncludePDFs       bool   `json:"include_pdfs,omitempty"`
	UserID            string `json:"user_id"`
}

// CrawlSiteResponse summarizes a criteria-directed crawl.
type CrawlSiteResponse struct {
	Domain           string        `json:"domain"`
	SuccessfulCrawls int           `json:"successful_crawls"`
	URLsConsidered   int           `json:"urls_considered"`
	Results          []CrawledPage `json:"results"`
}

// CrawlSite crawls a site keeping only pages matching the criteria.
func (c *Client) CrawlSite(ctx context.Context, req *CrawlSiteRequest) (*CrawlSiteResponse, error) {
	out := &CrawlSiteResponse{}
	err := c.callDegraded(ctx, "crawl_site", req, out)
	return out, err
}

// ExpandQueryResponse carries query variations for broader recall.
// Callers fall back to the original query when expansion fails.
type ExpandQueryResponse struct {
	OriginalQuery   string   `json:"original_query"`
	ExpandedQueries []string `json:"expanded_queries"`
	KeyEntities     []string `json:"key_entities,omitempty"`
	ExpansionCount  int      `json:"expansion_count"`
}

// ExpandQuery asks the backend for query variations.
func (c *Client) ExpandQuery(ctx context.Context, query string, numVariations int, userID, conversationContext string) (*ExpandQueryResponse, error) {
	args := map[string]any{
		"query":          query,
		"num_variations": numVariations,
		"user_id":        userID,
	}
	if conversationContext != "" {
		args["conversation_context"] = conversationContext
	}
	out := &ExpandQueryResponse{}
	err := c.callDegraded(ctx, "expand_query", args, out)
	return out, err
}

// CacheEntry is one prior research result from this conversation.
type CacheEntry struct {
	Content        string  `json:"content"`
	Timestamp      string  `json:"timestamp,omitempty"`
	AgentName      string  `json:"agent_name,omitempty"`
	RelevanceScore float64 `json:"relevance_score,omitempty"`
}

// ConversationCacheResponse reports cache hits within the freshness window.
type ConversationCacheResponse struct {
	CacheHit bool         `json:"cache_hit"`
	Entries  []CacheEntry `json:"entries,omitempty"`
}

// SearchConversationCache looks up recent research for this conversation.
func (c *Client) SearchConversationCache(ctx context.Context, query, conversationID string, freshnessHours int, userID string) (*ConversationCacheResponse, error) {
	args := map[string]any{
		"query":           query,
		"freshness_hours": freshnessHours,
		"user_id":         userID,
	}
	if conversationID != "" {
		args["conversation_id"] = conversationID
	}
	out := &ConversationCacheResponse{}
	err := c.callDegraded(ctx, "search_conversation_cache", args, out)
	return out, err
}
