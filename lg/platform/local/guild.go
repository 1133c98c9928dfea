// Package local is an in-memory guild: channels, roles, threads and
// permission overwrites kept in maps. It backs the standalone service and the
// tests of everything that drives a platform.
package local

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/e-psi-lon/ParalyaBot-sub000/lg/platform"
)

type channel struct {
	id       string
	name     string
	category string
	roles    map[string]platform.Overwrite
	members  map[string]platform.Overwrite
	threads  []string
}

type thread struct {
	parent   string
	locked   bool
	archived bool
}

// Delivery is a rendered event as it reached the guild.
type Delivery struct {
	Kind      platform.EventKind `json:"kind"`
	ChannelID string             `json:"channel_id,omitempty"`
	Member    string             `json:"member,omitempty"`
	Persona   string             `json:"persona,omitempty"`
	Text      string             `json:"text"`
}

// AuditEntry records a role swap.
type AuditEntry struct {
	Member string
	From   string
	To     string
	Reason string
}

// Guild implements platform.Guild, platform.RoleLifecycle and
// platform.Notifier in memory.
type Guild struct {
	mu       sync.RWMutex
	seq      int
	channels map[string]*channel
	threads  map[string]*thread
	members  map[string]map[string]bool
	audit    []AuditEntry
	history  []Delivery

	localizer platform.Localizer
	subs      map[int]chan Delivery
	nextSub   int
}

var (
	_ platform.Guild         = (*Guild)(nil)
	_ platform.RoleLifecycle = (*Guild)(nil)
	_ platform.Notifier      = (*Guild)(nil)
)

// NewGuild returns an empty guild rendering events with l.
func NewGuild(l platform.Localizer) *Guild {
	if l == nil {
		l = platform.Catalog{}
	}
	return &Guild{
		channels:  make(map[string]*channel),
		threads:   make(map[string]*thread),
		members:   make(map[string]map[string]bool),
		localizer: l,
		subs:      make(map[int]chan Delivery),
	}
}

func (g *Guild) nextID(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s%d", prefix, g.seq)
}

// AddChannel creates a channel under category and returns its id.
func (g *Guild) AddChannel(category, name string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextID("c")
	g.channels[id] = &channel{
		id:       id,
		name:     name,
		category: category,
		roles:    make(map[string]platform.Overwrite),
		members:  make(map[string]platform.Overwrite),
	}
	return id
}

// AddThread opens a thread under channelID and returns its id.
func (g *Guild) AddThread(channelID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.channels[channelID]
	if !ok {
		return "", fmt.Errorf("unknown channel %s", channelID)
	}
	id := g.nextID("t")
	g.threads[id] = &thread{parent: channelID}
	ch.threads = append(ch.threads, id)
	return id, nil
}

// ArchiveThread hides a thread from ActiveThreads.
func (g *Guild) ArchiveThread(threadID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t, ok := g.threads[threadID]; ok {
		t.archived = true
	}
}

// AddMember adds a member holding the given roles.
func (g *Guild) AddMember(memberID string, roles ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	set, ok := g.members[memberID]
	if !ok {
		set = make(map[string]bool)
		g.members[memberID] = set
	}
	for _, r := range roles {
		set[r] = true
	}
}

// Join adds memberID with the given roles unless the guild already knows
// them. It reports whether the member is new.
func (g *Guild) Join(memberID string, roles ...string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.members[memberID]; ok {
		return false
	}
	set := make(map[string]bool, len(roles))
	for _, r := range roles {
		set[r] = true
	}
	g.members[memberID] = set
	return true
}

func (g *Guild) Channels(ctx context.Context, categoryID string) ([]platform.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []platform.Channel
	for _, ch := range g.channels {
		if ch.category == categoryID {
			out = append(out, platform.Channel{ID: ch.id, Name: ch.name})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (g *Guild) SetRolePermissions(ctx context.Context, channelID, roleID string, ow platform.Overwrite) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.channels[channelID]
	if !ok {
		return fmt.Errorf("unknown channel %s", channelID)
	}
	ch.roles[roleID] = ow
	return nil
}

func (g *Guild) SetMemberPermissions(ctx context.Context, channelID, memberID string, ow platform.Overwrite) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.channels[channelID]
	if !ok {
		return fmt.Errorf("unknown channel %s", channelID)
	}
	ch.members[memberID] = ow
	return nil
}

// RoleOverwrite returns the overwrite set for roleID on channelID.
func (g *Guild) RoleOverwrite(channelID, roleID string) platform.Overwrite {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if ch, ok := g.channels[channelID]; ok {
		return ch.roles[roleID]
	}
	return platform.Overwrite{}
}

// MemberOverwrite returns the overwrite set for memberID on channelID.
func (g *Guild) MemberOverwrite(channelID, memberID string) platform.Overwrite {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if ch, ok := g.channels[channelID]; ok {
		return ch.members[memberID]
	}
	return platform.Overwrite{}
}

func (g *Guild) CanView(ctx context.Context, channelID, memberID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.allowed(channelID, memberID, platform.PermView), nil
}

// CanSend reports whether memberID may post in channelID.
func (g *Guild) CanSend(channelID, memberID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.allowed(channelID, memberID, platform.PermView|platform.PermSend)
}

// allowed starts from what the member's roles allow, then applies the
// member overwrite on top. Nothing is granted by default.
func (g *Guild) allowed(channelID, memberID string, perm platform.Permission) bool {
	ch, ok := g.channels[channelID]
	if !ok {
		return false
	}
	var eff platform.Permission
	for role := range g.members[memberID] {
		eff |= ch.roles[role].Allow
	}
	if ow, ok := ch.members[memberID]; ok {
		eff = (eff &^ ow.Deny) | ow.Allow
	}
	return eff.Has(perm)
}

func (g *Guild) ActiveThreads(ctx context.Context, channelID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	ch, ok := g.channels[channelID]
	if !ok {
		return nil, fmt.Errorf("unknown channel %s", channelID)
	}
	var out []string
	for _, id := range ch.threads {
		if t := g.threads[id]; t != nil && !t.archived {
			out = append(out, id)
		}
	}
	return out, nil
}

func (g *Guild) SetThreadLocked(ctx context.Context, threadID string, locked bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.threads[threadID]
	if !ok {
		return fmt.Errorf("unknown thread %s", threadID)
	}
	t.locked = locked
	return nil
}

// ThreadLocked reports the lock state of a thread.
func (g *Guild) ThreadLocked(threadID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.threads[threadID]
	return ok && t.locked
}

func (g *Guild) Members(ctx context.Context, roleID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []string
	for id, roles := range g.members {
		if roles[roleID] {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (g *Guild) HasRole(ctx context.Context, memberID, roleID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.members[memberID][roleID], nil
}

func (g *Guild) SwapRole(ctx context.Context, memberID, from, to, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	roles, ok := g.members[memberID]
	if !ok {
		return fmt.Errorf("unknown member %s", memberID)
	}
	delete(roles, from)
	roles[to] = true
	g.audit = append(g.audit, AuditEntry{Member: memberID, From: from, To: to, Reason: reason})
	log.Info().Str("member", memberID).Str("from", from).Str("to", to).Str("reason", reason).Msg("[guild] role swapped")
	return nil
}

// Audit returns the role swaps performed so far.
func (g *Guild) Audit() []AuditEntry {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.audit)
}

// Notify renders ev and fans it out to every subscriber.
func (g *Guild) Notify(ctx context.Context, ev platform.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d := Delivery{
		Kind:      ev.Kind,
		ChannelID: ev.ChannelID,
		Member:    ev.Member,
		Persona:   ev.Persona,
		Text:      g.localizer.Localize(ev.Key, ev.Args...),
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.history = append(g.history, d)
	for _, ch := range g.subs {
		push(ch, d)
	}
	return nil
}

// push never blocks: a slow subscriber loses its oldest delivery.
func push(ch chan Delivery, d Delivery) {
	select {
	case ch <- d:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- d:
		default:
		}
	}
}

// History returns every delivery so far.
func (g *Guild) History() []Delivery {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.history)
}

// Subscribe returns a channel receiving every future delivery and a function
// that stops the subscription.
func (g *Guild) Subscribe(buffer int) (<-chan Delivery, func()) {
	ch := make(chan Delivery, buffer)
	g.mu.Lock()
	id := g.nextSub
	g.nextSub++
	g.subs[id] = ch
	g.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.subs, id)
			g.mu.Unlock()
			close(ch)
		})
	}
}

// Visible reports whether memberID should see d.
func (g *Guild) Visible(d Delivery, memberID string) bool {
	if d.Member != "" {
		return d.Member == memberID
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.allowed(d.ChannelID, memberID, platform.PermView)
}
