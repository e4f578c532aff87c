package evidence

import (
	"strings"
	"testing"

	"github.com/factharbor/verify-cli/internal/model"
)

// goodItem returns an item that passes every structural rule.
func goodItem(id string) model.EvidenceItem {
	return model.EvidenceItem{
		ID:            id,
		SourceID:      "src-" + id,
		Statement:     "The committee approved the measure on a 12-3 vote.",
		Category:      model.CategoryEvent,
		SourceURL:     "https://example.com/article",
		SourceExcerpt: "Minutes show the committee approved the measure on a 12-3 vote after debate.",
		Direction:     model.DirectionSupports,
		Probative:     model.ProbativeHigh,
		Authority:     model.AuthorityPrimary,
		Basis:         model.BasisDocumented,
	}
}

func TestFilter_KeepsCleanItems(t *testing.T) {
	items := []model.EvidenceItem{goodItem("a"), goodItem("b")}
	res := Filter(items, FilterConfig{})

	if len(res.Kept) != 2 || len(res.Filtered) != 0 {
		t.Fatalf("expected all kept, got kept=%d filtered=%d", len(res.Kept), len(res.Filtered))
	}
	if res.Stats.Total != 2 || res.Stats.Kept != 2 {
		t.Errorf("bad stats: %+v", res.Stats)
	}
}

func TestFilter_RuleOrder_FirstMatchWins(t *testing.T) {
	// Opinion + low probative + short statement: only opinion_source reported.
	item := goodItem("a")
	item.Authority = model.AuthorityOpinion
	item.Probative = model.ProbativeLow
	item.Statement = "short"

	res := Filter([]model.EvidenceItem{item}, FilterConfig{})
	if len(res.Filtered) != 1 {
		t.Fatalf("expected 1 filtered, got %d", len(res.Filtered))
	}
	if res.Filtered[0].Reason != ReasonOpinionSource {
		t.Errorf("expected opinion_source (highest priority), got %s", res.Filtered[0].Reason)
	}
}

func TestFilter_AllRejectReasons(t *testing.T) {
	opinion := goodItem("opinion")
	opinion.Authority = model.AuthorityOpinion

	lowProb := goodItem("lowprob")
	lowProb.Probative = model.ProbativeLow

	shortStmt := goodItem("shortstmt")
	shortStmt.Statement = "too short"

	noExcerpt := goodItem("noexcerpt")
	noExcerpt.SourceExcerpt = ""

	shortExcerpt := goodItem("shortexcerpt")
	shortExcerpt.SourceExcerpt = "tiny excerpt"

	noURL := goodItem("nourl")
	noURL.SourceURL = ""

	statNoNumber := goodItem("statnonum")
	statNoNumber.Category = model.CategoryStatistic
	statNoNumber.Statement = "Unemployment fell sharply according to officials."
	statNoNumber.SourceExcerpt = "Officials said unemployment fell sharply during the last quarter overall."

	statShortExcerpt := goodItem("statshort")
	statShortExcerpt.Category = model.CategoryStatistic
	statShortExcerpt.Statement = "Unemployment fell to 3.4% in March."
	statShortExcerpt.SourceExcerpt = "Unemployment fell to 3.4% then." // >= 30, < 50

	cases := []struct {
		item model.EvidenceItem
		want string
	}{
		{opinion, ReasonOpinionSource},
		{lowProb, ReasonLowProbativeValue},
		{shortStmt, ReasonStatementTooShort},
		{noExcerpt, ReasonMissingOrShortExcerpt},
		{shortExcerpt, ReasonMissingOrShortExcerpt},
		{noURL, ReasonMissingSourceURL},
		{statNoNumber, ReasonStatisticWithoutNumber},
		{statShortExcerpt, ReasonStatisticExcerptTooShort},
	}

	for _, c := range cases {
		res := Filter([]model.EvidenceItem{c.item}, FilterConfig{})
		if len(res.Filtered) != 1 {
			t.Errorf("%s: expected rejection, kept=%d", c.item.ID, len(res.Kept))
			continue
		}
		if res.Filtered[0].Reason != c.want {
			t.Errorf("%s: reason = %s, want %s", c.item.ID, res.Filtered[0].Reason, c.want)
		}
	}
}

func TestFilter_ReasonCountsSumToFiltered(t *testing.T) {
	items := []model.EvidenceItem{goodItem("a")}
	for i := 0; i < 3; i++ {
		item := goodItem("op")
		item.Authority = model.AuthorityOpinion
		items = append(items, item)
	}
	noURL := goodItem("nourl")
	noURL.SourceURL = ""
	items = append(items, noURL)

	res := Filter(items, FilterConfig{})

	sum := 0
	for _, n := range res.Stats.FilterReasons {
		sum += n
	}
	if sum != len(res.Filtered) {
		t.Errorf("reason counts sum %d != filtered %d", sum, len(res.Filtered))
	}
	if res.Stats.FilterReasons[ReasonOpinionSource] != 3 {
		t.Errorf("expected 3 opinion_source, got %d", res.Stats.FilterReasons[ReasonOpinionSource])
	}
}

func TestFilter_Idempotent(t *testing.T) {
	items := []model.EvidenceItem{goodItem("a"), goodItem("b")}
	bad := goodItem("bad")
	bad.Probative = model.ProbativeLow
	items = append(items, bad)

	first := Filter(items, FilterConfig{})
	second := Filter(first.Kept, FilterConfig{})

	if len(second.Kept) != len(first.Kept) {
		t.Errorf("re-filtering kept items changed the set: %d -> %d", len(first.Kept), len(second.Kept))
	}
	if len(second.Filtered) != 0 {
		t.Errorf("re-filtering kept items rejected %d", len(second.Filtered))
	}
}

func TestFilter_ConfigOverrides(t *testing.T) {
	item := goodItem("a")
	item.SourceURL = ""
	item.SourceExcerpt = ""

	res := Filter([]model.EvidenceItem{item}, FilterConfig{SkipExcerptCheck: true, SkipURLCheck: true})
	if len(res.Kept) != 1 {
		t.Errorf("expected override to keep the item, filtered as %v", res.Filtered)
	}

	// Raised statement minimum rejects otherwise fine items.
	res = Filter([]model.EvidenceItem{goodItem("b")}, FilterConfig{MinStatementLength: 500})
	if len(res.Filtered) != 1 || res.Filtered[0].Reason != ReasonStatementTooShort {
		t.Errorf("expected statement_too_short under raised minimum, got %+v", res.Filtered)
	}
}

func TestFilter_StatisticNumberInExcerptOnly(t *testing.T) {
	item := goodItem("a")
	item.Category = model.CategoryStatistic
	item.Statement = "Unemployment fell sharply according to the report."
	item.SourceExcerpt = "The report shows unemployment fell to 3.4 percent during the quarter " + strings.Repeat("x", 10)

	res := Filter([]model.EvidenceItem{item}, FilterConfig{})
	if len(res.Kept) != 1 {
		t.Errorf("digit in excerpt should satisfy the number rule, filtered as %+v", res.Filtered)
	}
}
