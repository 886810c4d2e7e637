package groups

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/parleychat/parley/pkg/parley/apperr"
	"github.com/parleychat/parley/pkg/parley/logging"
	"github.com/parleychat/parley/pkg/parley/models"
	"github.com/parleychat/parley/pkg/parley/users"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultTxTimeout = 10 * time.Second

// MemberSpec names a user by public identifier and, optionally, a role
type MemberSpec struct {
	UserUUID string
	Role     models.GroupRole
}

// Changes is a batch of group edits applied atomically by UpdateGroup.
// Nil or empty fields are left alone.
type Changes struct {
	Name          *string
	RemoveMembers []string
	AddMembers    []MemberSpec
	RoleUpdates   []MemberSpec
}

func (c Changes) empty() bool {
	return c.Name == nil && len(c.RemoveMembers) == 0 && len(c.AddMembers) == 0 && len(c.RoleUpdates) == 0
}

// Member is an active member of a group
type Member struct {
	UUID  string           `json:"uuid"`
	Name  string           `json:"name"`
	Email string           `json:"email"`
	Role  models.GroupRole `json:"role"`
}

// Detail is a group with its active members
type Detail struct {
	ID          uint               `json:"-"`
	UUID        string             `json:"uuid"`
	Name        string             `json:"name"`
	CreatedBy   models.UserSummary `json:"created_by"`
	CreatedAt   time.Time          `json:"created_at"`
	Members     []Member           `json:"members"`
	MemberCount int                `json:"member_count"`
}

// Summary is a group as listed for one of its members
type Summary struct {
	UUID        string           `json:"uuid"`
	Name        string           `json:"name"`
	Role        models.GroupRole `json:"role"`
	MemberCount int              `json:"member_count"`
	CreatedAt   time.Time        `json:"created_at"`
}

// MemberList is the active membership of a group
type MemberList struct {
	Members []Member `json:"members"`
	Count   int      `json:"count"`
}

// Manager applies membership changes. Every mutation runs in one
// transaction that locks the group row first and ends by checking that the
// group still has an active admin; a failed check rolls everything back.
type Manager struct {
	db        *gorm.DB
	txTimeout time.Duration
}

// NewManager creates a manager. txTimeout bounds each mutating transaction.
func NewManager(db *gorm.DB, txTimeout time.Duration) *Manager {
	if txTimeout <= 0 {
		txTimeout = defaultTxTimeout
	}
	return &Manager{db: db, txTimeout: txTimeout}
}

// CreateGroup creates a group with the creator as its admin. Unknown member
// identifiers are dropped and entries naming the creator are ignored.
func (m *Manager) CreateGroup(ctx context.Context, name string, creatorID uint, members []MemberSpec) (*Detail, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	if err := validateRoles(members); err != nil {
		return nil, err
	}

	var detail *Detail
	err := m.transaction(ctx, func(tx *gorm.DB) error {
		var creator models.User
		if err := tx.First(&creator, creatorID).Error; err != nil {
			return notFoundOr(err, "User not found")
		}

		group := models.Group{Name: name, CreatedByID: creator.ID, Active: true}
		if err := tx.Omit(clause.Associations).Create(&group).Error; err != nil {
			return err
		}

		admin := models.GroupMembership{UserID: creator.ID, GroupID: group.ID, Role: models.GroupRoleAdmin, Active: true}
		if err := tx.Omit(clause.Associations).Create(&admin).Error; err != nil {
			return err
		}

		found, err := users.FindByUUIDs(tx, specUUIDs(members))
		if err != nil {
			return err
		}
		known := make([]MemberSpec, 0, len(members))
		for _, spec := range members {
			u, ok := found[spec.UserUUID]
			if !ok || u.ID == creator.ID {
				continue
			}
			known = append(known, spec)
		}
		if err := upsertMembers(tx, group.ID, known, found); err != nil {
			return err
		}

		if err := ensureAdmin(tx, group.ID); err != nil {
			return err
		}

		group.CreatedBy = creator
		detail, err = loadDetail(tx, &group)
		return err
	})
	if err != nil {
		return nil, err
	}

	logging.Event("group_created", map[string]interface{}{
		"group_uuid":   detail.UUID,
		"member_count": detail.MemberCount,
	})
	return detail, nil
}

// UpdateGroup applies changes as one unit: rename, removals, additions and
// role updates. The requester must be an active admin. Unknown users abort
// the whole update, as does leaving the group without an active admin.
func (m *Manager) UpdateGroup(ctx context.Context, groupUUID string, requesterID uint, changes Changes) (*Detail, error) {
	if changes.empty() {
		return nil, apperr.Validation("name, removeMembers, addMembers or roleUpdates is required")
	}
	if err := validateRoles(changes.AddMembers); err != nil {
		return nil, err
	}
	if err := validateRoles(changes.RoleUpdates); err != nil {
		return nil, err
	}
	for _, spec := range changes.RoleUpdates {
		if spec.Role == "" {
			return nil, apperr.Validation("role is required for role updates")
		}
	}

	var detail *Detail
	err := m.transaction(ctx, func(tx *gorm.DB) error {
		group, err := lockGroup(tx, groupUUID)
		if err != nil {
			return err
		}
		if err := requireAdmin(tx, group.ID, requesterID); err != nil {
			return err
		}

		if changes.Name != nil {
			name := strings.TrimSpace(*changes.Name)
			if name == "" {
				return apperr.Validation("name cannot be blank")
			}
			if err := tx.Model(group).Update("name", name).Error; err != nil {
				return err
			}
		}

		identifiers := append([]string(nil), changes.RemoveMembers...)
		identifiers = append(identifiers, specUUIDs(changes.AddMembers)...)
		identifiers = append(identifiers, specUUIDs(changes.RoleUpdates)...)
		found, err := resolveUsers(tx, identifiers)
		if err != nil {
			return err
		}

		if len(changes.RemoveMembers) > 0 {
			ids := make([]uint, 0, len(changes.RemoveMembers))
			for _, id := range changes.RemoveMembers {
				ids = append(ids, found[id].ID)
			}
			err := tx.Model(&models.GroupMembership{}).
				Where("group_id = ? AND user_id IN ? AND active = ?", group.ID, ids, true).
				Update("active", false).Error
			if err != nil {
				return err
			}
		}

		if err := upsertMembers(tx, group.ID, changes.AddMembers, found); err != nil {
			return err
		}

		// Role updates only touch memberships that are still active
		for _, spec := range changes.RoleUpdates {
			err := tx.Model(&models.GroupMembership{}).
				Where("group_id = ? AND user_id = ? AND active = ?", group.ID, found[spec.UserUUID].ID, true).
				Update("role", spec.Role).Error
			if err != nil {
				return err
			}
		}

		if err := ensureAdmin(tx, group.ID); err != nil {
			return err
		}

		detail, err = loadDetail(tx, group)
		return err
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// AddMembers adds or reactivates members. Active members are left as they
// are. A zero requesterID skips the admin check.
func (m *Manager) AddMembers(ctx context.Context, groupUUID string, members []MemberSpec, requesterID uint) (*MemberList, error) {
	if len(members) == 0 {
		return nil, apperr.Validation("members is required")
	}
	if err := validateRoles(members); err != nil {
		return nil, err
	}

	var list *MemberList
	err := m.transaction(ctx, func(tx *gorm.DB) error {
		group, err := lockGroup(tx, groupUUID)
		if err != nil {
			return err
		}
		if requesterID != 0 {
			if err := requireAdmin(tx, group.ID, requesterID); err != nil {
				return err
			}
		}

		found, err := resolveUsers(tx, specUUIDs(members))
		if err != nil {
			return err
		}
		if err := upsertMembers(tx, group.ID, members, found); err != nil {
			return err
		}
		if err := ensureAdmin(tx, group.ID); err != nil {
			return err
		}

		active, err := activeMembers(tx, group.ID)
		if err != nil {
			return err
		}
		list = &MemberList{Members: active, Count: len(active)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

// DeleteGroup deactivates every membership and then the group. A zero
// requesterID skips the admin check.
func (m *Manager) DeleteGroup(ctx context.Context, groupUUID string, requesterID uint) error {
	err := m.transaction(ctx, func(tx *gorm.DB) error {
		group, err := lockGroup(tx, groupUUID)
		if err != nil {
			return err
		}
		if requesterID != 0 {
			if err := requireAdmin(tx, group.ID, requesterID); err != nil {
				return err
			}
		}

		if err := tx.Model(&models.GroupMembership{}).
			Where("group_id = ?", group.ID).
			Update("active", false).Error; err != nil {
			return err
		}
		return tx.Model(group).Update("active", false).Error
	})
	if err != nil {
		return err
	}

	logging.Event("group_deleted", map[string]interface{}{"group_uuid": groupUUID})
	return nil
}

// GetGroup returns an active group the user actively belongs to
func (m *Manager) GetGroup(ctx context.Context, groupUUID string, userID uint) (*Detail, error) {
	db := m.db.WithContext(ctx)

	group, err := m.visibleGroup(db, groupUUID, userID)
	if err != nil {
		return nil, err
	}
	if err := db.First(&group.CreatedBy, group.CreatedByID).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Internal(err, "Failed to fetch group")
	}

	detail, err := loadDetail(db, group)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch group")
	}
	return detail, nil
}

// ListGroups returns the active groups the user actively belongs to, with
// the user's role and each group's active member count
func (m *Manager) ListGroups(ctx context.Context, userID uint) ([]Summary, error) {
	db := m.db.WithContext(ctx)

	var all []models.GroupMembership
	err := db.Preload("Group").
		Where("user_id = ? AND active = ?", userID, true).
		Order("id ASC").
		Find(&all).Error
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch groups")
	}

	memberships := all[:0]
	for _, ms := range all {
		if ms.Group.Active {
			memberships = append(memberships, ms)
		}
	}
	if len(memberships) == 0 {
		return []Summary{}, nil
	}

	groupIDs := make([]uint, len(memberships))
	for i, ms := range memberships {
		groupIDs[i] = ms.GroupID
	}

	var counts []struct {
		GroupID uint
		Total   int
	}
	err = db.Model(&models.GroupMembership{}).
		Select("group_id, COUNT(*) AS total").
		Where("group_id IN ? AND active = ?", groupIDs, true).
		Group("group_id").
		Scan(&counts).Error
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch groups")
	}
	countByGroup := make(map[uint]int, len(counts))
	for _, c := range counts {
		countByGroup[c.GroupID] = c.Total
	}

	summaries := make([]Summary, len(memberships))
	for i, ms := range memberships {
		summaries[i] = Summary{
			UUID:        ms.Group.UUID,
			Name:        ms.Group.Name,
			Role:        ms.Role,
			MemberCount: countByGroup[ms.GroupID],
			CreatedAt:   ms.Group.CreatedAt,
		}
	}
	return summaries, nil
}

// ListMembers returns the active members of a group the user belongs to
func (m *Manager) ListMembers(ctx context.Context, groupUUID string, userID uint) (*MemberList, error) {
	db := m.db.WithContext(ctx)

	group, err := m.visibleGroup(db, groupUUID, userID)
	if err != nil {
		return nil, err
	}
	members, err := activeMembers(db, group.ID)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch members")
	}
	return &MemberList{Members: members, Count: len(members)}, nil
}

// visibleGroup hides groups from non-members behind a not-found error
func (m *Manager) visibleGroup(db *gorm.DB, groupUUID string, userID uint) (*models.Group, error) {
	var group models.Group
	if err := db.Where("uuid = ? AND active = ?", groupUUID, true).First(&group).Error; err != nil {
		return nil, notFoundOr(err, "Group not found")
	}

	var count int64
	if err := db.Model(&models.GroupMembership{}).
		Where("group_id = ? AND user_id = ? AND active = ?", group.ID, userID, true).
		Count(&count).Error; err != nil {
		return nil, apperr.Internal(err, "Failed to fetch group")
	}
	if count == 0 {
		return nil, apperr.NotFound("Group not found")
	}
	return &group, nil
}

func (m *Manager) transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(ctx, m.txTimeout)
	defer cancel()

	err := m.db.WithContext(ctx).Transaction(fn)
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperr.Internal(err, "Group update timed out")
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperr.Internal(err, "Failed to update group")
}

// lockGroup loads the active group row FOR UPDATE. SQLite ignores the
// locking clause and serializes writers on its own.
func lockGroup(tx *gorm.DB, groupUUID string) (*models.Group, error) {
	var group models.Group
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("uuid = ? AND active = ?", groupUUID, true).
		First(&group).Error
	if err != nil {
		return nil, notFoundOr(err, "Group not found")
	}
	if err := tx.First(&group.CreatedBy, group.CreatedByID).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return &group, nil
}

func requireAdmin(tx *gorm.DB, groupID, userID uint) error {
	var count int64
	err := tx.Model(&models.GroupMembership{}).
		Where("group_id = ? AND user_id = ? AND role = ? AND active = ?", groupID, userID, models.GroupRoleAdmin, true).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return apperr.Forbidden("Admin access required")
	}
	return nil
}

// ensureAdmin is the last step of every mutation. The admin rows are read
// with a lock so a concurrent demotion cannot slip past the check.
func ensureAdmin(tx *gorm.DB, groupID uint) error {
	var admins []models.GroupMembership
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("group_id = ? AND role = ? AND active = ?", groupID, models.GroupRoleAdmin, true).
		Find(&admins).Error
	if err != nil {
		return err
	}
	if len(admins) == 0 {
		return apperr.Invariant("A group must keep at least one admin")
	}
	return nil
}

// resolveUsers maps identifiers to users and fails on the first unknown one
func resolveUsers(tx *gorm.DB, identifiers []string) (map[string]models.User, error) {
	found, err := users.FindByUUIDs(tx, dedupe(identifiers))
	if err != nil {
		return nil, err
	}
	for _, id := range identifiers {
		if _, ok := found[id]; !ok {
			return nil, apperr.NotFound("User %s not found", id)
		}
	}
	return found, nil
}

// upsertMembers creates missing memberships and reactivates inactive ones.
// Active memberships are not modified.
func upsertMembers(tx *gorm.DB, groupID uint, specs []MemberSpec, found map[string]models.User) error {
	for _, spec := range specs {
		user := found[spec.UserUUID]
		role := spec.Role
		if role == "" {
			role = models.GroupRoleMember
		}

		var existing models.GroupMembership
		if err := tx.Where("group_id = ? AND user_id = ?", groupID, user.ID).Limit(1).Find(&existing).Error; err != nil {
			return err
		}

		if existing.ID != 0 {
			if existing.Active {
				continue
			}
			err := tx.Model(&existing).Updates(map[string]interface{}{
				"active": true,
				"role":   role,
			}).Error
			if err != nil {
				return err
			}
			continue
		}

		membership := models.GroupMembership{UserID: user.ID, GroupID: groupID, Role: role, Active: true}
		if err := tx.Omit(clause.Associations).Create(&membership).Error; err != nil {
			return err
		}
	}
	return nil
}

func activeMembers(db *gorm.DB, groupID uint) ([]Member, error) {
	var memberships []models.GroupMembership
	err := db.Preload("User").
		Where("group_id = ? AND active = ?", groupID, true).
		Order("id ASC").
		Find(&memberships).Error
	if err != nil {
		return nil, err
	}

	members := make([]Member, len(memberships))
	for i, ms := range memberships {
		members[i] = Member{
			UUID:  ms.User.UUID,
			Name:  ms.User.Name,
			Email: ms.User.Email,
			Role:  ms.Role,
		}
	}
	return members, nil
}

func loadDetail(db *gorm.DB, group *models.Group) (*Detail, error) {
	var fresh models.Group
	if err := db.First(&fresh, group.ID).Error; err != nil {
		return nil, err
	}
	members, err := activeMembers(db, group.ID)
	if err != nil {
		return nil, err
	}
	return &Detail{
		ID:          fresh.ID,
		UUID:        fresh.UUID,
		Name:        fresh.Name,
		CreatedBy:   group.CreatedBy.Summary(),
		CreatedAt:   fresh.CreatedAt,
		Members:     members,
		MemberCount: len(members),
	}, nil
}

func validateRoles(specs []MemberSpec) error {
	for _, spec := range specs {
		if strings.TrimSpace(spec.UserUUID) == "" {
			return apperr.Validation("user_uuid is required")
		}
		if spec.Role != "" && !spec.Role.Valid() {
			return apperr.Validation("role must be one of: admin member")
		}
	}
	return nil
}

func specUUIDs(specs []MemberSpec) []string {
	ids := make([]string, len(specs))
	for i, spec := range specs {
		ids[i] = spec.UserUUID
	}
	return ids
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func notFoundOr(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("%s", message)
	}
	return apperr.Internal(err, message)
}
