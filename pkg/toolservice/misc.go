// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package toolservice

import "context"

// WeatherReport is the backend's weather answer for one location.
type WeatherReport struct {
	Location          string           `json:"location"`
	CurrentConditions map[string]any   `json:"current_conditions,omitempty"`
	Forecast          []map[string]any `json:"forecast,omitempty"`
	Alerts            []map[string]any `json:"alerts,omitempty"`
	Metadata          map[string]any   `json:"metadata,omitempty"`
}

// GetWeather fetches conditions, forecast, or alerts for a location.
// dataTypes selects which sections to populate; dateStr narrows the
// forecast to a single day when set.
func (c *Client) GetWeather(ctx context.Context, location, userID string, dataTypes []string, dateStr string) (*WeatherReport, error) {
	args := map[string]any{
		"location": location,
		"user_id":  userID,
	}
	if len(dataTypes) > 0 {
		args["data_types"] = dataTypes
	}
	if dateStr != "" {
		args["date_str"] = dateStr
	}
	out := &WeatherReport{}
	err := c.callDegraded(ctx, "get_weather", args, out)
	return out, err
}

// GeneratedImage is one rendered image from the backend.
type GeneratedImage struct {
	Filename string `json:"filename"`
	Path     string `json:"path,omitempty"`
	URL      string `json:"url,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	Format   string `json:"format,omitempty"`
}

// GenerateImageRequest shapes a text-to-image call.
type GenerateImageRequest struct {
	Prompt         string `json:"prompt"`
	Size           string `json:"size,omitempty"`
	Format         string `json:"format,omitempty"`
	Seed           int    `json:"seed,omitempty"`
	NumImages      int    `json:"num_images,omitempty"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	UserID         string `json:"user_id"`
}

// GenerateImageResponse reports the rendered files.
type GenerateImageResponse struct {
	Success bool             `json:"success"`
	Model   string           `json:"model,omitempty"`
	Images  []GeneratedImage `json:"images,omitempty"`
}

// GenerateImage renders images from a prompt.
func (c *Client) GenerateImage(ctx context.Context, req *GenerateImageRequest) (*GenerateImageResponse, error) {
	out := &GenerateImageResponse{}
	err := c.callDegraded(ctx, "generate_image", req, out)
	return out, err
}

// UpdateConversationTitle renames a conversation in the backend's store.
func (c *Client) UpdateConversationTitle(ctx context.Context, conversationID, title, userID string) (bool, error) {
	out := &struct {
		Success bool   `json:"success"`
		Title   string `json:"title,omitempty"`
	}{}
	err := c.callDegraded(ctx, "update_conversation_title", map[string]any{
		"conversation_id": conversationID,
		"title":           title,
		"user_id":         userID,
	}, out)
	return out.Success, err
}

// CreateChartRequest describes a chart render. Data carries the series
// as a JSON string so arbitrary tabular shapes pass through unchanged.
type CreateChartRequest struct {
	ChartType     string `json:"chart_type"`
	Data          string `json:"data"`
	Title         string `json:"title,omitempty"`
	XLabel        string `json:"x_label,omitempty"`
	YLabel        string `json:"y_label,omitempty"`
	Interactive   bool   `json:"interactive,omitempty"`
	ColorScheme   string `json:"color_scheme,omitempty"`
	Width         int    `json:"width,omitempty"`
	Height        int    `json:"height,omitempty"`
	IncludeStatic bool   `json:"include_static,omitempty"`
}

// CreateChartResponse returns the rendered chart payload.
type CreateChartResponse struct {
	Success      bool           `json:"success"`
	ChartType    string         `json:"chart_type,omitempty"`
	OutputFormat string         `json:"output_format,omitempty"`
	ChartData    string         `json:"chart_data,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// CreateChart renders a chart from tabular data.
func (c *Client) CreateChart(ctx context.Context, req *CreateChartRequest) (*CreateChartResponse, error) {
	out := &CreateChartResponse{}
	err := c.callDegraded(ctx, "create_chart", req, out)
	return out, err
}

// TextMetrics summarizes readability and structure of a passage.
type TextMetrics struct {
	WordCount        int      `json:"word_count"`
	SentenceCount    int      `json:"sentence_count"`
	ParagraphCount   int      `json:"paragraph_count"`
	ReadingTimeMin   float64  `json:"reading_time_minutes"`
	ReadabilityScore float64  `json:"readability_score,omitempty"`
	KeyPhrases       []string `json:"key_phrases,omitempty"`
	Sentiment        string   `json:"sentiment,omitempty"`
}

// AnalyzeTextContent computes metrics for a passage. includeAdvanced
// adds readability scoring and key-phrase extraction.
func (c *Client) AnalyzeTextContent(ctx context.Context, content string, includeAdvanced bool, userID string) (*TextMetrics, error) {
	out := &TextMetrics{}
	err := c.callDegraded(ctx, "analyze_text_content", map[string]any{
		"content":          content,
		"include_advanced": includeAdvanced,
		"user_id":          userID,
	}, out)
	return out, err
}
