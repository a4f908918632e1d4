// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package toolservice

import "context"

// Entity is a knowledge-graph node extracted from the user's documents.
type Entity struct {
	Name            string   `json:"name"`
	EntityType      string   `json:"entity_type,omitempty"`
	Description     string   `json:"description,omitempty"`
	RelevanceScore  float64  `json:"relevance_score,omitempty"`
	DocumentCount   int      `json:"document_count,omitempty"`
	RelatedEntities []string `json:"related_entities,omitempty"`
}

// SearchEntities finds entities matching the query.
func (c *Client) SearchEntities(ctx context.Context, query, userID string, limit int) ([]Entity, error) {
	out := &struct {
		Entities []Entity `json:"entities"`
	}{}
	err := c.callDegraded(ctx, "search_entities", map[string]any{
		"query":   query,
		"user_id": userID,
		"limit":   limit,
	}, out)
	return out.Entities, err
}

// GetEntity fetches one entity by name, or nil when absent.
func (c *Client) GetEntity(ctx context.Context, entityName, userID string) (*Entity, error) {
	out := &Entity{}
	err := c.callDegraded(ctx, "get_entity", map[string]any{
		"entity_name": entityName,
		"user_id":     userID,
	}, out)
	if err != nil {
		return nil, err
	}
	if out.Name == "" {
		return nil, nil
	}
	return out, nil
}

// FindDocumentsByEntities returns documents mentioning all the entities.
func (c *Client) FindDocumentsByEntities(ctx context.Context, entityNames []string, userID string, limit int) ([]DocumentHit, error) {
	out := &struct {
		Documents []DocumentHit `json:"documents"`
	}{}
	err := c.callDegraded(ctx, "find_documents_by_entities", map[string]any{
		"entity_names": entityNames,
		"user_id":      userID,
		"limit":        limit,
	}, out)
	return out.Documents, err
}

// FindRelatedDocumentsByEntities walks entity links out from a document.
func (c *Client) FindRelatedDocumentsByEntities(ctx context.Context, documentID, userID string, limit int) ([]DocumentHit, error) {
	out := &struct {
		Documents []DocumentHit `json:"documents"`
	}{}
	err := c.callDegraded(ctx, "find_related_documents_by_entities", map[string]any{
		"document_id": documentID,
		"user_id":     userID,
		"limit":       limit,
	}, out)
	return out.Documents, err
}

// FindCoOccurringEntities returns entities that appear alongside the
// named one.
func (c *Client) FindCoOccurringEntities(ctx context.Context, entityName, userID string, limit int) ([]Entity, error) {
	out := &struct {
		Entities []Entity `json:"entities"`
	}{}
	err := c.callDegraded(ctx, "find_co_occurring_entities", map[string]any{
		"entity_name": entityName,
		"user_id":     userID,
		"limit":       limit,
	}, out)
	return out.Entities, err
}
