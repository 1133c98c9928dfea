package local

import (
	"context"
	"testing"

	"github.com/e-psi-lon/ParalyaBot-sub000/lg/platform"
)

func TestPermissions(t *testing.T) {
	ctx := context.Background()
	g := NewGuild(nil)
	ch := g.AddChannel("main", "village")
	g.AddMember("ann", "alive")
	g.AddMember("bob", "alive")

	if ok, _ := g.CanView(ctx, ch, "ann"); ok {
		t.Fatal("nothing should be visible by default")
	}
	if err := g.SetRolePermissions(ctx, ch, "alive", platform.Overwrite{Allow: platform.PermView | platform.PermSend}); err != nil {
		t.Fatal(err)
	}
	if !g.CanSend(ch, "ann") {
		t.Fatal("role allow not applied")
	}
	if err := g.SetMemberPermissions(ctx, ch, "bob", platform.Overwrite{Deny: platform.PermSend}); err != nil {
		t.Fatal(err)
	}
	if g.CanSend(ch, "bob") {
		t.Fatal("member deny not applied")
	}
	if ok, _ := g.CanView(ctx, ch, "bob"); !ok {
		t.Fatal("member deny removed more than send")
	}
	if err := g.SetRolePermissions(ctx, "nope", "alive", platform.Overwrite{}); err == nil {
		t.Fatal("expected an error for an unknown channel")
	}
}

func TestChannelsAndThreads(t *testing.T) {
	ctx := context.Background()
	g := NewGuild(nil)
	a := g.AddChannel("main", "votes")
	g.AddChannel("roles", "cupid")

	chans, err := g.Channels(ctx, "main")
	if err != nil {
		t.Fatal(err)
	}
	if len(chans) != 1 || chans[0].ID != a || chans[0].Name != "votes" {
		t.Fatalf("channels = %+v", chans)
	}

	t1, _ := g.AddThread(a)
	t2, _ := g.AddThread(a)
	g.ArchiveThread(t2)
	active, err := g.ActiveThreads(ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0] != t1 {
		t.Fatalf("active threads = %v", active)
	}
	if err := g.SetThreadLocked(ctx, t1, true); err != nil {
		t.Fatal(err)
	}
	if !g.ThreadLocked(t1) || g.ThreadLocked(t2) {
		t.Fatal("lock state wrong")
	}
}

func TestSwapRoleAndJoin(t *testing.T) {
	ctx := context.Background()
	g := NewGuild(nil)
	if !g.Join("ann", "alive") {
		t.Fatal("first join should add the member")
	}
	if err := g.SwapRole(ctx, "ann", "alive", "dead", "test"); err != nil {
		t.Fatal(err)
	}
	if g.Join("ann", "alive") {
		t.Fatal("a known member must not be joined again")
	}
	if alive, _ := g.HasRole(ctx, "ann", "alive"); alive {
		t.Fatal("rejoining revived a dead member")
	}
	members, _ := g.Members(ctx, "dead")
	if len(members) != 1 || members[0] != "ann" {
		t.Fatalf("dead members = %v", members)
	}
	if audit := g.Audit(); len(audit) != 1 || audit[0].Reason != "test" {
		t.Fatalf("audit = %+v", audit)
	}
	if err := g.SwapRole(ctx, "ghost", "alive", "dead", "test"); err == nil {
		t.Fatal("expected an error for an unknown member")
	}
}

func TestNotifyFanOut(t *testing.T) {
	ctx := context.Background()
	g := NewGuild(platform.Catalog{"hello": "hello %s"})
	ch := g.AddChannel("main", "village")
	g.AddMember("ann", "alive")
	_ = g.SetRolePermissions(ctx, ch, "alive", platform.Overwrite{Allow: platform.PermView})

	deliveries, cancel := g.Subscribe(1)
	defer cancel()

	_ = g.Notify(ctx, platform.Event{Kind: platform.EventNotice, ChannelID: ch, Key: "hello", Args: []any{"village"}})
	_ = g.Notify(ctx, platform.Event{Kind: platform.EventNotice, Member: "bob", Key: "hello", Args: []any{"bob"}})

	// buffer of one: the older delivery was dropped
	d := <-deliveries
	if d.Text != "hello bob" {
		t.Fatalf("delivery = %+v", d)
	}
	if g.Visible(d, "ann") || !g.Visible(d, "bob") {
		t.Fatal("private delivery visibility wrong")
	}
	if h := g.History(); len(h) != 2 || !g.Visible(h[0], "ann") || g.Visible(h[0], "bob") {
		t.Fatalf("history = %+v", h)
	}
}

func TestCatalogFallback(t *testing.T) {
	c := platform.Catalog{"k": "%d votes"}
	if got := c.Localize("k", 3); got != "3 votes" {
		t.Fatalf("got %q", got)
	}
	if got := c.Localize("missing", "a", 1); got != "missing a 1" {
		t.Fatalf("got %q", got)
	}
	if got := c.Localize("missing"); got != "missing" {
		t.Fatalf("got %q", got)
	}
}
