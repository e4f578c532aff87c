// Package model defines the core domain types of the verification pipeline.
package model

import "time"

// EvidenceCategory classifies what kind of evidence a statement carries.
type EvidenceCategory string

const (
	CategoryStatistic      EvidenceCategory = "statistic"
	CategoryExpertQuote    EvidenceCategory = "expert_quote"
	CategoryEvent          EvidenceCategory = "event"
	CategoryLegalProvision EvidenceCategory = "legal_provision"
	CategoryDirectEvidence EvidenceCategory = "direct_evidence"
	CategoryGeneral        EvidenceCategory = "general"
)

// ClaimDirection describes how an evidence item bears on its claim.
type ClaimDirection string

const (
	DirectionSupports    ClaimDirection = "supports"
	DirectionContradicts ClaimDirection = "contradicts"
	DirectionNeutral     ClaimDirection = "neutral"
)

// ProbativeValue rates how strongly an item can prove anything.
type ProbativeValue string

const (
	ProbativeHigh   ProbativeValue = "high"
	ProbativeMedium ProbativeValue = "medium"
	ProbativeLow    ProbativeValue = "low"
)

// SourceAuthority rates the source's standing on the subject.
type SourceAuthority string

const (
	AuthorityPrimary   SourceAuthority = "primary"
	AuthoritySecondary SourceAuthority = "secondary"
	AuthorityOpinion   SourceAuthority = "opinion"
	AuthorityContested SourceAuthority = "contested"
)

// EvidenceBasis describes the epistemic footing of an item.
type EvidenceBasis string

const (
	BasisScientific      EvidenceBasis = "scientific"
	BasisDocumented      EvidenceBasis = "documented"
	BasisAnecdotal       EvidenceBasis = "anecdotal"
	BasisTheoretical     EvidenceBasis = "theoretical"
	BasisPseudoscientific EvidenceBasis = "pseudoscientific"
)

// EvidenceScope optionally pins an item to a time period or jurisdiction.
type EvidenceScope struct {
	Temporal     string `json:"temporal,omitempty"`
	Jurisdiction string `json:"jurisdiction,omitempty"`
}

// EvidenceItem is one atomic piece of evidence tied to one source. Items are
// immutable after extraction: filtering stages produce new slices rather than
// mutating in place.
type EvidenceItem struct {
	ID            string           `json:"id"`
	SourceID      string           `json:"source_id"`
	Statement     string           `json:"statement"`
	Category      EvidenceCategory `json:"category"`
	SourceURL     string           `json:"source_url,omitempty"`
	SourceExcerpt string           `json:"source_excerpt,omitempty"`
	SourceTitle   string           `json:"source_title,omitempty"`
	Direction     ClaimDirection   `json:"claim_direction"`
	Probative     ProbativeValue   `json:"probative_value"`
	Authority     SourceAuthority  `json:"source_authority"`
	Basis         EvidenceBasis    `json:"evidence_basis"`
	Scope         *EvidenceScope   `json:"evidence_scope,omitempty"`
}

// SourceCategory distinguishes how a source document was obtained.
type SourceCategory string

const (
	SourceGroundedSearch SourceCategory = "grounded_search"
	SourceWebSearch      SourceCategory = "web_search"
)

// FetchedSource is one fetched document backing zero or more evidence items.
type FetchedSource struct {
	ID               string         `json:"id"`
	URL              string         `json:"url"`
	Title            string         `json:"title,omitempty"`
	FullText         string         `json:"full_text,omitempty"`
	TrackRecordScore *float64       `json:"track_record_score,omitempty"`
	FetchedAt        time.Time      `json:"fetched_at"`
	Category         SourceCategory `json:"category"`
	FetchSuccess     bool           `json:"fetch_success"`
}

// Reliability returns the source's track record score normalized to [0,1].
// Scores above 1 indicate an upstream 0-100 scale and are divided by 100.
// Sources without a score get the neutral default 0.5.
func (s *FetchedSource) Reliability() float64 {
	if s.TrackRecordScore == nil {
		return 0.5
	}
	score := *s.TrackRecordScore
	if score > 1 {
		score = score / 100
	}
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
