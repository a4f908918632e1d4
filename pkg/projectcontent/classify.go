// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package projectcontent

import (
	"sort"
	"strings"
)

// Content types a routed piece can classify as.
const (
	TypeComponent     = "component"
	TypeProtocol      = "protocol"
	TypeSchematic     = "schematic"
	TypeSpecification = "specification"
	TypeArchitecture  = "architecture"
	TypeCode          = "code"
)

// typeKeywords drive classification. Sets differ in size, so scores are
// normalized per set and raw hit counts break ties.
var typeKeywords = map[string][]string{
	TypeComponent: {
		"component", "resistor", "capacitor", "sensor", "module", "chip",
		"connector", "microcontroller", "part", "bom", "datasheet",
	},
	TypeProtocol: {
		"protocol", "i2c", "spi", "uart", "mqtt", "http", "grpc",
		"handshake", "packet", "baud", "bus",
	},
	TypeSchematic: {
		"schematic", "wiring", "circuit", "pin", "pinout", "trace",
		"pcb", "layout", "net", "ground",
	},
	TypeSpecification: {
		"specification", "requirement", "spec", "tolerance", "constraint",
		"limit", "rating", "threshold",
	},
	TypeArchitecture: {
		"architecture", "overview", "design", "system", "structure",
		"roadmap", "milestone", "phase",
	},
	TypeCode: {
		"code", "function", "class", "firmware", "sketch",
		"implementation", "snippet", "library", "loop",
	},
}

// typeSections maps a content type to its conventional section header.
var typeSections = map[string]string{
	TypeComponent:     "Components",
	TypeProtocol:      "Protocols",
	TypeSchematic:     "Schematic Notes",
	TypeSpecification: "Specifications",
	TypeArchitecture:  "Architecture",
	TypeCode:          "Code",
}

// ClassifyContentType scores the text against every type's keyword set
// and returns the best. Ties go to the type with the most raw hits; text
// with no hits reads as specification, the most generic reference form.
func ClassifyContentType(text string) string {
	toks := wordList(text)

	type scored struct {
		name       string
		normalized float64
		hits       int
	}
	var results []scored
	for name, kws := range typeKeywords {
		hits := 0
		for _, kw := range kws {
			hits += countWord(toks, kw)
		}
		if hits == 0 {
			continue
		}
		results = append(results, scored{
			name:       name,
			normalized: float64(hits) / float64(len(kws)),
			hits:       hits,
		})
	}
	if len(results) == 0 {
		return TypeSpecification
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].normalized != results[j].normalized {
			return results[i].normalized > results[j].normalized
		}
		if results[i].hits != results[j].hits {
			return results[i].hits > results[j].hits
		}
		return results[i].name < results[j].name
	})
	return results[0].name
}

// SectionForType names the target section for a content type.
func SectionForType(contentType string) string {
	if s, ok := typeSections[contentType]; ok {
		return s
	}
	return "Notes"
}

// filenameMatchesType reports whether a candidate filename names the
// content type, e.g. components.md for component content.
func filenameMatchesType(path, contentType string) bool {
	base := strings.ToLower(path)
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	switch contentType {
	case TypeComponent:
		return strings.Contains(base, "component") || strings.Contains(base, "part") || strings.Contains(base, "bom")
	case TypeProtocol:
		return strings.Contains(base, "protocol") || strings.Contains(base, "interface")
	case TypeSchematic:
		return strings.Contains(base, "schematic") || strings.Contains(base, "wiring") || strings.Contains(base, "circuit")
	case TypeSpecification:
		return strings.Contains(base, "spec") || strings.Contains(base, "requirement")
	case TypeArchitecture:
		return strings.Contains(base, "architecture") || strings.Contains(base, "plan") || strings.Contains(base, "overview")
	case TypeCode:
		return strings.Contains(base, "code") || strings.Contains(base, "firmware") || strings.Contains(base, "sketch")
	}
	return false
}

func wordList(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return (r < 'a' || r > 'z') && (r < '0' || r > '9')
	})
}

func countWord(toks []string, w string) int {
	n := 0
	for _, t := range toks {
		if t == w {
			n++
		}
	}
	return n
}
