package models

import (
	"strings"
	"time"
)

// GroupState marks whether a group is live or has been soft-deleted.
// Content-addressed backends cannot erase immutable blobs, so deletion is a
// tagged state carried by the record itself.
type GroupState string

const (
	GroupActive  GroupState = "active"
	GroupDeleted GroupState = "deleted"
)

// Role defines a member's standing within a group.
type Role string

const (
	RoleCreator Role = "creator"
	RoleAdmin   Role = "admin"
	RoleMember  Role = "member"
)

// MemberStatus defines the possible states of a group member.
type MemberStatus string

const (
	MemberActive   MemberStatus = "active"
	MemberInactive MemberStatus = "inactive"
)

// ContributionStatus defines the possible states of a contribution.
// Transitions are pending -> confirmed or pending -> failed, never back.
type ContributionStatus string

const (
	ContributionPending   ContributionStatus = "pending"
	ContributionConfirmed ContributionStatus = "confirmed"
	ContributionFailed    ContributionStatus = "failed"
)

// Group is the savings-goal aggregate root. It includes dynamodbav tags for
// the record store and json tags for replica blobs and API responses.
type Group struct {
	GroupID     string `json:"group_id" dynamodbav:"group_id"`
	Name        string `json:"name" dynamodbav:"name"`
	Description string `json:"description" dynamodbav:"description"`

	// Creator is the lowercase wallet address of the group's creator.
	// Immutable after creation; the creator holds write and delete rights
	// even if absent from Members.
	Creator string `json:"creator" dynamodbav:"creator"`

	GoalAmount     int64     `json:"goal_amount" dynamodbav:"goal_amount"`
	DurationDays   int       `json:"duration_days" dynamodbav:"duration_days"`
	DueDay         int       `json:"due_day" dynamodbav:"due_day"`
	WithdrawalDate time.Time `json:"withdrawal_date" dynamodbav:"withdrawal_date"`

	Members       []Member       `json:"members" dynamodbav:"members"`
	Contributions []Contribution `json:"contributions" dynamodbav:"contributions"`
	Settings      GroupSettings  `json:"settings" dynamodbav:"settings"`
	Blockchain    BlockchainRef  `json:"blockchain" dynamodbav:"blockchain"`
	Invite        Invite         `json:"invite" dynamodbav:"invite"`

	State     GroupState `json:"state" dynamodbav:"state"`
	Version   int64      `json:"version" dynamodbav:"version"`
	CreatedAt time.Time  `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" dynamodbav:"updated_at"`

	// InviteCode and MemberAddresses are denormalized copies kept at the top
	// level of the document so the record store can query by invite code and
	// filter by membership.
	InviteCode      string   `json:"-" dynamodbav:"invite_code"`
	MemberAddresses []string `json:"-" dynamodbav:"member_addresses"`
}

// Member is a participant in a group. Address is unique within the group,
// compared case-insensitively.
type Member struct {
	Address      string       `json:"address" dynamodbav:"address"`
	Nickname     string       `json:"nickname" dynamodbav:"nickname"`
	Role         Role         `json:"role" dynamodbav:"role"`
	Status       MemberStatus `json:"status" dynamodbav:"status"`
	Contribution int64        `json:"contribution" dynamodbav:"contribution"`
	AuraPoints   int64        `json:"aura_points" dynamodbav:"aura_points"`
	JoinedAt     time.Time    `json:"joined_at" dynamodbav:"joined_at"`
}

// Contribution records a single payment toward the group goal. The list is
// append-only; only Status changes after insertion.
type Contribution struct {
	ID          string             `json:"id" dynamodbav:"id"`
	Contributor string             `json:"contributor" dynamodbav:"contributor"`
	Amount      int64              `json:"amount" dynamodbav:"amount"`
	TxHash      string             `json:"tx_hash" dynamodbav:"tx_hash"`
	Timestamp   time.Time          `json:"timestamp" dynamodbav:"timestamp"`
	Status      ContributionStatus `json:"status" dynamodbav:"status"`
	IsEarly     bool               `json:"is_early" dynamodbav:"is_early"`
}

// Invite is a single-use, time-limited token granting group membership.
type Invite struct {
	Code      string    `json:"code" dynamodbav:"code"`
	GroupID   string    `json:"group_id" dynamodbav:"group_id"`
	ExpiresAt time.Time `json:"expires_at" dynamodbav:"expires_at"`
	IsUsed    bool      `json:"is_used" dynamodbav:"is_used"`
	UsedBy    string    `json:"used_by" dynamodbav:"used_by"`
}

// GroupSettings is embedded per-group configuration.
type GroupSettings struct {
	IsActive   bool `json:"is_active" dynamodbav:"is_active"`
	MaxMembers int  `json:"max_members" dynamodbav:"max_members"`
}

// BlockchainRef points at the on-chain contract backing the group. Opaque to
// the storage layer.
type BlockchainRef struct {
	ContractAddress string `json:"contract_address" dynamodbav:"contract_address"`
	TxHash          string `json:"tx_hash" dynamodbav:"tx_hash"`
}

// GroupPatch carries the mutable fields of a group update. Nil fields are
// left untouched by the merge.
type GroupPatch struct {
	Name        *string        `json:"name,omitempty"`
	Description *string        `json:"description,omitempty"`
	GoalAmount  *int64         `json:"goal_amount,omitempty"`
	DueDay      *int           `json:"due_day,omitempty"`
	Settings    *GroupSettings `json:"settings,omitempty"`
}

// NormalizeAddress lowercases and trims a wallet address so comparisons and
// map keys behave case-insensitively.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// FindMember returns the member with the given address, or nil.
func (g *Group) FindMember(addr string) *Member {
	addr = NormalizeAddress(addr)
	for i := range g.Members {
		if NormalizeAddress(g.Members[i].Address) == addr {
			return &g.Members[i]
		}
	}
	return nil
}

// HasMember reports whether the address belongs to a member of the group.
func (g *Group) HasMember(addr string) bool {
	return g.FindMember(addr) != nil
}

// FindContribution returns the contribution with the given id, or nil.
func (g *Group) FindContribution(id string) *Contribution {
	for i := range g.Contributions {
		if g.Contributions[i].ID == id {
			return &g.Contributions[i]
		}
	}
	return nil
}

// Touch refreshes the freshness signal used by replica reconciliation and
// bumps the advisory version counter.
func (g *Group) Touch(now time.Time) {
	g.UpdatedAt = now
	g.Version++
}

// SyncDenormalized refreshes the queryable top-level copies of the invite
// code and member address list. Must be called before persisting a mutated
// aggregate.
func (g *Group) SyncDenormalized() {
	g.InviteCode = g.Invite.Code
	addrs := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		addrs = append(addrs, NormalizeAddress(m.Address))
	}
	g.MemberAddresses = addrs
}

// Apply merges a patch into the group. It does not touch timestamps; callers
// decide when the mutation is durable.
func (g *Group) Apply(patch GroupPatch) {
	if patch.Name != nil {
		g.Name = *patch.Name
	}
	if patch.Description != nil {
		g.Description = *patch.Description
	}
	if patch.GoalAmount != nil {
		g.GoalAmount = *patch.GoalAmount
	}
	if patch.DueDay != nil {
		g.DueDay = *patch.DueDay
	}
	if patch.Settings != nil {
		g.Settings = *patch.Settings
	}
}

// Aura points awarded when a contribution confirms.
const (
	AuraPerContribution = 10
	AuraEarlyBonus      = 5
)

// ResolveContribution transitions a contribution to a terminal status,
// folding confirmed amounts into the member's running totals and refreshing
// the aggregate's freshness signal. Returns false if the contribution id is
// unknown. Already-terminal contributions are left untouched; the
// pending->confirmed|failed transition never reverses.
func (g *Group) ResolveContribution(id string, status ContributionStatus, now time.Time) bool {
	contribution := g.FindContribution(id)
	if contribution == nil {
		return false
	}
	if contribution.Status != ContributionPending {
		return true
	}

	contribution.Status = status
	if status == ContributionConfirmed {
		if member := g.FindMember(contribution.Contributor); member != nil {
			member.Contribution += contribution.Amount
			member.AuraPoints += AuraPerContribution
			if contribution.IsEarly {
				member.AuraPoints += AuraEarlyBonus
			}
		}
	}
	g.Touch(now)
	return true
}

// Expired reports whether the invite is past its expiry at the given instant.
func (inv Invite) Expired(now time.Time) bool {
	return !inv.ExpiresAt.IsZero() && now.After(inv.ExpiresAt)
}
