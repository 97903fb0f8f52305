package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"peermap/internal/model"
)

func ptr[T any](v T) *T { return &v }

func sampleNodes() map[string]model.Node {
	return map[string]model.Node{
		"aa": {ID: "aa", IP: "1.1.1.1", Port: 26656, Moniker: "acme-vn-01", Org: "acme",
			Role: model.RoleValidator, RPCAccessible: true, AppVersion: ptr("1.4.4"), Height: ptr(int64(120))},
		"bb": {ID: "bb", IP: "2.2.2.2", Port: 26656, Moniker: "acme-sentry-1", Org: "acme",
			Role: model.RoleSentry, RPCAccessible: true, Height: ptr(int64(100))},
		"cc": {ID: "cc", IP: "3.3.3.3", Moniker: "beta", Org: "beta", Role: model.RoleUnknown},
		"dd": {ID: "dd", IP: "2001:db8::1", Port: 26656, Moniker: "zeta-seed", Org: "zeta",
			Role: model.RoleSeed, RPCAccessible: true, Height: ptr(int64(110))},
	}
}

func TestSummarize_Counts(t *testing.T) {
	t.Parallel()

	s := Summarize(sampleNodes(), []model.Edge{{Source: "aa", Target: "bb"}, {Source: "bb", Target: "cc"}})
	if s.TotalNodes != 4 || s.TotalEdges != 2 || s.Accessible != 3 {
		t.Fatalf("summary=%+v", s)
	}
	if s.ByOrg["acme"] != 2 || s.ByOrg["beta"] != 1 {
		t.Fatalf("orgs=%v", s.ByOrg)
	}
	if s.ByRole[model.RoleValidator] != 1 || s.ByRole[model.RoleSeed] != 1 {
		t.Fatalf("roles=%v", s.ByRole)
	}
	if s.HeightCount != 3 || s.MaxHeight != 120 || s.P50Height != 110 {
		t.Fatalf("heights=%d/%d/%d", s.HeightCount, s.MaxHeight, s.P50Height)
	}
	if got := strings.Join(s.Orgs(), ","); got != "acme,beta,zeta" {
		t.Fatalf("orgs order=%s", got)
	}
}

func TestSummarize_Empty(t *testing.T) {
	t.Parallel()

	s := Summarize(nil, nil)
	if s.TotalNodes != 0 || s.HeightCount != 0 || len(s.ByOrg) != 0 {
		t.Fatalf("summary=%+v", s)
	}
}

func TestPercentile_Edges(t *testing.T) {
	t.Parallel()

	values := []float64{1, 2, 3, 4}
	if got := percentile(values, 0); got != 1 {
		t.Fatalf("p0=%v", got)
	}
	if got := percentile(values, 1); got != 4 {
		t.Fatalf("p100=%v", got)
	}
	if got := percentile(values, 0.5); got != 2 {
		t.Fatalf("p50=%v", got)
	}
}

func TestPersistentPeers(t *testing.T) {
	t.Parallel()

	got := PersistentPeers(sampleNodes(), 0)
	want := "bb@2.2.2.2:26656,aa@1.1.1.1:26656,dd@[2001:db8::1]:26656"
	if got != want {
		t.Fatalf("peers=%q want %q", got, want)
	}

	if got := PersistentPeers(sampleNodes(), 1); got != "bb@2.2.2.2:26656" {
		t.Fatalf("limited=%q", got)
	}
	if got := PersistentPeers(map[string]model.Node{}, 10); got != "" {
		t.Fatalf("empty=%q", got)
	}
}

func TestWriteText_Sections(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteText(&buf, sampleNodes(), []model.Edge{{Source: "aa", Target: "bb"}}, DefaultPeerLimit); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"Total peers discovered: 4",
		"Total connections: 1",
		"Peers with accessible RPC: 3",
		"Organizations (3):",
		"  acme: 2 nodes",
		"ACCESSIBLE RPC NODES",
		"1.4.4",
		"PERSISTENT PEERS",
		`persistent_peers = "bb@2.2.2.2:26656,`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "3.3.3.3") {
		t.Fatalf("unreachable node listed as accessible:\n%s", out)
	}
}

func TestWriteCSV_ReadBack(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nodes.csv")
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleNodes()); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("lines=%d\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "id,moniker,ip,") {
		t.Fatalf("missing header: %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "aa,") {
		t.Fatalf("rows not sorted: %q", lines[1])
	}

	back, err := ReadCSV(path)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(back) != 4 {
		t.Fatalf("nodes=%d", len(back))
	}
	aa := back["aa"]
	if aa.AppVersion == nil || *aa.AppVersion != "1.4.4" || aa.Height == nil || *aa.Height != 120 {
		t.Fatalf("aa=%+v", aa)
	}
	if cc := back["cc"]; cc.AppVersion != nil || cc.Height != nil || cc.RPCAccessible {
		t.Fatalf("cc=%+v", cc)
	}
}

func TestReadCSV_ShortRecord(t *testing.T) {
	t.Parallel()

	if _, err := readCSV(strings.NewReader("id,moniker\naa,x\n")); err == nil {
		t.Fatalf("expected error")
	}
}
