package cachepolicy

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/vietddude/homelink/internal/core/domain"
	"github.com/vietddude/homelink/internal/infra/netmon"
)

func online(metered bool) *netmon.ManualObserver {
	return netmon.NewManualObserver(domain.NetworkState{
		Connected: true,
		Type:      domain.NetWifi,
		Metered:   metered,
		Validated: true,
	})
}

func offline() *netmon.ManualObserver {
	return netmon.NewManualObserver(domain.Offline())
}

func emptyResponse() *http.Response {
	return &http.Response{
		StatusCode: 200,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader("")),
	}
}

func taggedRequest(t *testing.T, class ResourceClass) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, "https://example.com/api/items", nil)
	if err != nil {
		t.Fatal(err)
	}
	return req.WithContext(WithClass(req.Context(), class))
}

func TestTableCoversAllCombinations(t *testing.T) {
	classes := []ResourceClass{ClassRecipes, ClassTaxonomy, ClassUser, ClassOther}
	strategies := []Strategy{StrategyAggressive, StrategyBalanced, StrategyFresh, StrategyOfflineFirst}

	if len(policyTable) != 16 {
		t.Fatalf("policy table has %d entries, want 16", len(policyTable))
	}
	for _, c := range classes {
		for _, s := range strategies {
			if _, ok := policyTable[tableKey{c, s}]; !ok {
				t.Errorf("missing table entry for (%s, %s)", c, s)
			}
		}
	}
}

func TestUserEntriesNeverForceCacheOffline(t *testing.T) {
	for key, cfg := range policyTable {
		if key.Class == ClassUser && cfg.ForceCacheOffline {
			t.Errorf("(%s, %s) sets ForceCacheOffline on user data", key.Class, key.Strategy)
		}
	}
}

func TestOnlineMaxAgeApplied(t *testing.T) {
	engine := NewEngine(StrategyBalanced, online(false))

	resp, err := engine.Intercept(taggedRequest(t, ClassRecipes), func(req *http.Request) (*http.Response, error) {
		return emptyResponse(), nil
	})
	if err != nil {
		t.Fatal(err)
	}

	cc := resp.Header.Get("Cache-Control")
	if !strings.Contains(cc, "max-age=120") {
		t.Errorf("Cache-Control = %q, want max-age=120", cc)
	}
	if !strings.Contains(cc, "public") {
		t.Errorf("Cache-Control = %q, want public scope", cc)
	}
	// Half the 48h offline allowance.
	if !strings.Contains(cc, "stale-while-revalidate=86400") {
		t.Errorf("Cache-Control = %q, want stale-while-revalidate=86400", cc)
	}
}

func TestMeteredConnectionDoublesMaxAge(t *testing.T) {
	engine := NewEngine(StrategyBalanced, online(true))

	resp, err := engine.Intercept(taggedRequest(t, ClassRecipes), func(req *http.Request) (*http.Response, error) {
		return emptyResponse(), nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if cc := resp.Header.Get("Cache-Control"); !strings.Contains(cc, "max-age=240") {
		t.Errorf("Cache-Control = %q, want doubled max-age=240", cc)
	}
}

func TestOfflineForceCacheNeverTouchesNetwork(t *testing.T) {
	engine := NewEngine(StrategyOfflineFirst, offline())

	calls := 0
	resp, err := engine.Intercept(taggedRequest(t, ClassRecipes), func(req *http.Request) (*http.Response, error) {
		calls++
		return emptyResponse(), nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if calls != 0 {
		t.Errorf("network attempts while disconnected = %d, want 0", calls)
	}
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want locally synthesized 504", resp.StatusCode)
	}

	cc := resp.Header.Get("Cache-Control")
	if !strings.Contains(cc, "only-if-cached") {
		t.Errorf("Cache-Control = %q, want only-if-cached", cc)
	}
	// 30-day offline allowance in seconds.
	if !strings.Contains(cc, "max-stale=2592000") {
		t.Errorf("Cache-Control = %q, want max-stale=2592000", cc)
	}
}

func TestOfflineUserDataStillAttemptsNetwork(t *testing.T) {
	engine := NewEngine(StrategyOfflineFirst, offline())

	calls := 0
	_, err := engine.Intercept(taggedRequest(t, ClassUser), func(req *http.Request) (*http.Response, error) {
		calls++
		return emptyResponse(), nil
	})
	if err != nil {
		t.Fatal(err)
	}

	// User entries never force cache-only; stale identity data must not
	// mask a re-login.
	if calls != 1 {
		t.Errorf("network attempts = %d, want 1", calls)
	}
}

func TestUserDataIsPrivate(t *testing.T) {
	engine := NewEngine(StrategyBalanced, online(false))

	resp, err := engine.Intercept(taggedRequest(t, ClassUser), func(req *http.Request) (*http.Response, error) {
		return emptyResponse(), nil
	})
	if err != nil {
		t.Fatal(err)
	}

	cc := resp.Header.Get("Cache-Control")
	if strings.Contains(cc, "public") {
		t.Errorf("Cache-Control = %q, user data must not be public", cc)
	}
}

func TestCachedResponsePassesThroughUntouched(t *testing.T) {
	engine := NewEngine(StrategyBalanced, online(false))

	resp := emptyResponse()
	resp.Header.Set(FromCacheHeader, "1")
	resp.Header.Set("Cache-Control", "max-age=7")

	out, err := engine.Intercept(taggedRequest(t, ClassRecipes), func(req *http.Request) (*http.Response, error) {
		return resp, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if cc := out.Header.Get("Cache-Control"); cc != "max-age=7" {
		t.Errorf("Cache-Control = %q, cached response must pass through untouched", cc)
	}
}

func TestSyntheticValidatorAttached(t *testing.T) {
	engine := NewEngine(StrategyBalanced, online(false))

	resp, err := engine.Intercept(taggedRequest(t, ClassRecipes), func(req *http.Request) (*http.Response, error) {
		return emptyResponse(), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Header.Get("Last-Modified") == "" {
		t.Error("expected a synthetic validator on a response without one")
	}

	withETag := emptyResponse()
	withETag.Header.Set("ETag", `"abc"`)
	resp, err = engine.Intercept(taggedRequest(t, ClassRecipes), func(req *http.Request) (*http.Response, error) {
		return withETag, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Header.Get("Last-Modified") != "" {
		t.Error("must not attach a synthetic validator when the upstream provided one")
	}
}

func TestClassFromRequestFallsBackToHeader(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "https://example.com/x", nil)
	if err != nil {
		t.Fatal(err)
	}

	if got := ClassFromRequest(req); got != ClassOther {
		t.Errorf("untagged request classified as %s, want other", got)
	}

	req.Header.Set(ClassHeader, string(ClassTaxonomy))
	if got := ClassFromRequest(req); got != ClassTaxonomy {
		t.Errorf("header-tagged request classified as %s, want taxonomy", got)
	}
}

func TestLookupUnknownFallsBack(t *testing.T) {
	got := Lookup(ResourceClass("bogus"), StrategyBalanced)
	want := Lookup(ClassOther, StrategyBalanced)
	if got != want {
		t.Errorf("Lookup(bogus) = %+v, want balanced/other fallback", got)
	}
}
