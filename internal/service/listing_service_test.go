package service

import (
	"testing"

	"propmarket/internal/model"
	"propmarket/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateListingConsumesOneCredit(t *testing.T) {
	env := newTestEnv(t)
	agent := env.mustRegister(t, "agent@example.com", model.RoleAgent)
	require.Equal(t, int64(1), agent.ListingCredits, "注册赠送1枚发布积分")

	listing, err := env.listings.CreateListing(testCtx(), agent.ID, validListingAttrs())
	require.NoError(t, err)

	assert.Equal(t, model.ListingStatusPending, listing.Status)
	assert.Equal(t, int64(0), listing.ViewsCount)
	assert.Equal(t, agent.ID, listing.AgentID)
	assert.NotEmpty(t, listing.ListingNo)
	assert.Equal(t, int64(0), env.reloadAccount(t, agent.ID).ListingCredits)

	// 扣减落了系统流水
	entries, _, err := env.accounts.ListCreditEntries(testCtx(), agent.ID, 1, 10)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	latest := entries[0]
	assert.Equal(t, model.CreditKindListing, latest.Kind)
	assert.Equal(t, int64(-1), latest.Amount)
	assert.Equal(t, model.ActorSystem, latest.Actor)
}

func TestCreateListingInsufficientCredits(t *testing.T) {
	env := newTestEnv(t)
	agent := env.mustRegister(t, "agent@example.com", model.RoleAgent)

	_, err := env.listings.CreateListing(testCtx(), agent.ID, validListingAttrs())
	require.NoError(t, err)

	// 积分用完，第二次发布拒绝且不产生房源
	_, err = env.listings.CreateListing(testCtx(), agent.ID, validListingAttrs())
	assert.ErrorIs(t, err, repository.ErrInsufficientListingCredits)
	assert.Equal(t, int64(1), env.countListings(t))
	assert.Equal(t, int64(0), env.reloadAccount(t, agent.ID).ListingCredits)
}

func TestCreateListingValidation(t *testing.T) {
	env := newTestEnv(t)
	agent := env.mustRegister(t, "agent@example.com", model.RoleAgent)

	attrs := validListingAttrs()
	attrs.Title = ""

	_, err := env.listings.CreateListing(testCtx(), agent.ID, attrs)

	var vErr *model.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "title", vErr.Field)

	// 校验失败不扣积分
	assert.Equal(t, int64(1), env.reloadAccount(t, agent.ID).ListingCredits)
	assert.Equal(t, int64(0), env.countListings(t))
}

func TestCreateListingRequiresAgentRole(t *testing.T) {
	env := newTestEnv(t)
	consumer := env.mustRegister(t, "user@example.com", model.RoleConsumer)

	_, err := env.listings.CreateListing(testCtx(), consumer.ID, validListingAttrs())
	assert.ErrorIs(t, err, ErrNotAgent)
}

func TestUpdateListing(t *testing.T) {
	env := newTestEnv(t)
	agent := env.mustRegister(t, "agent@example.com", model.RoleAgent)
	listing, err := env.listings.CreateListing(testCtx(), agent.ID, validListingAttrs())
	require.NoError(t, err)

	attrs := validListingAttrs()
	attrs.Title = "三室两厅"
	attrs.Price = 5200

	updated, err := env.listings.UpdateListing(testCtx(), listing.ID, agent.ID, attrs)
	require.NoError(t, err)
	assert.Equal(t, "三室两厅", updated.Title)
	assert.Equal(t, float64(5200), updated.Price)

	// 状态、归属、浏览数不被更新触碰
	reloaded, err := env.listings.GetListing(testCtx(), listing.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ListingStatusPending, reloaded.Status)
	assert.Equal(t, agent.ID, reloaded.AgentID)
	assert.Equal(t, int64(0), reloaded.ViewsCount)
	// 更新不消耗发布积分
	assert.Equal(t, int64(0), env.reloadAccount(t, agent.ID).ListingCredits)
}

func TestUpdateListingNotOwner(t *testing.T) {
	env := newTestEnv(t)
	agent := env.mustRegister(t, "agent@example.com", model.RoleAgent)
	other := env.mustRegister(t, "other@example.com", model.RoleAgent)
	listing, err := env.listings.CreateListing(testCtx(), agent.ID, validListingAttrs())
	require.NoError(t, err)

	_, err = env.listings.UpdateListing(testCtx(), listing.ID, other.ID, validListingAttrs())
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestUpdateArchivedListing(t *testing.T) {
	env := newTestEnv(t)
	admin := env.mustRegister(t, "admin@example.com", model.RoleAdmin)
	agent := env.mustRegister(t, "agent@example.com", model.RoleAgent)
	listing, err := env.listings.CreateListing(testCtx(), agent.ID, validListingAttrs())
	require.NoError(t, err)

	_, err = env.listings.TransitionStatus(testCtx(), listing.ID, admin.ID, model.RoleAdmin, model.ListingStatusApproved)
	require.NoError(t, err)
	_, err = env.listings.TransitionStatus(testCtx(), listing.ID, agent.ID, model.RoleAgent, model.ListingStatusArchived)
	require.NoError(t, err)

	_, err = env.listings.UpdateListing(testCtx(), listing.ID, agent.ID, validListingAttrs())
	assert.ErrorIs(t, err, ErrListingArchived)
}

func TestTransitionStatusEdges(t *testing.T) {
	env := newTestEnv(t)
	admin := env.mustRegister(t, "admin@example.com", model.RoleAdmin)
	agent := env.mustRegister(t, "agent@example.com", model.RoleAgent)
	listing, err := env.listings.CreateListing(testCtx(), agent.ID, validListingAttrs())
	require.NoError(t, err)

	// PENDING 不能直接下架
	_, err = env.listings.TransitionStatus(testCtx(), listing.ID, admin.ID, model.RoleAdmin, model.ListingStatusArchived)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// 经纪人不能审核
	_, err = env.listings.TransitionStatus(testCtx(), listing.ID, agent.ID, model.RoleAgent, model.ListingStatusApproved)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	// 管理员驳回
	updated, err := env.listings.TransitionStatus(testCtx(), listing.ID, admin.ID, model.RoleAdmin, model.ListingStatusRejected)
	require.NoError(t, err)
	assert.Equal(t, model.ListingStatusRejected, updated.Status)

	// 非房主不能重新提交
	other := env.mustRegister(t, "other@example.com", model.RoleAgent)
	_, err = env.listings.TransitionStatus(testCtx(), listing.ID, other.ID, model.RoleAgent, model.ListingStatusPending)
	assert.ErrorIs(t, err, ErrNotOwner)

	// 房主重新提交
	updated, err = env.listings.TransitionStatus(testCtx(), listing.ID, agent.ID, model.RoleAgent, model.ListingStatusPending)
	require.NoError(t, err)
	assert.Equal(t, model.ListingStatusPending, updated.Status)

	// 管理员通过，房主下架
	_, err = env.listings.TransitionStatus(testCtx(), listing.ID, admin.ID, model.RoleAdmin, model.ListingStatusApproved)
	require.NoError(t, err)
	updated, err = env.listings.TransitionStatus(testCtx(), listing.ID, agent.ID, model.RoleAgent, model.ListingStatusArchived)
	require.NoError(t, err)
	assert.Equal(t, model.ListingStatusArchived, updated.Status)

	// ARCHIVED 是终态
	_, err = env.listings.TransitionStatus(testCtx(), listing.ID, agent.ID, model.RoleAgent, model.ListingStatusPending)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = env.listings.TransitionStatus(testCtx(), listing.ID, admin.ID, model.RoleAdmin, model.ListingStatusApproved)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRejectedListingCanBeArchived(t *testing.T) {
	env := newTestEnv(t)
	admin := env.mustRegister(t, "admin@example.com", model.RoleAdmin)
	agent := env.mustRegister(t, "agent@example.com", model.RoleAgent)
	listing, err := env.listings.CreateListing(testCtx(), agent.ID, validListingAttrs())
	require.NoError(t, err)

	_, err = env.listings.TransitionStatus(testCtx(), listing.ID, admin.ID, model.RoleAdmin, model.ListingStatusRejected)
	require.NoError(t, err)

	updated, err := env.listings.TransitionStatus(testCtx(), listing.ID, admin.ID, model.RoleAdmin, model.ListingStatusArchived)
	require.NoError(t, err)
	assert.Equal(t, model.ListingStatusArchived, updated.Status)
}

func TestImageOperationsPersist(t *testing.T) {
	env := newTestEnv(t)
	agent := env.mustRegister(t, "agent@example.com", model.RoleAgent)
	listing, err := env.listings.CreateListing(testCtx(), agent.ID, validListingAttrs())
	require.NoError(t, err)

	_, err = env.listings.AddImage(testCtx(), listing.ID, agent.ID, "a.jpg")
	require.NoError(t, err)
	_, err = env.listings.AddImage(testCtx(), listing.ID, agent.ID, "b.jpg")
	require.NoError(t, err)

	reloaded, err := env.listings.GetListing(testCtx(), listing.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StringList{"a.jpg", "b.jpg"}, reloaded.ImageURLs)
	assert.Equal(t, "a.jpg", reloaded.MainImageURL)

	_, err = env.listings.SetMainImage(testCtx(), listing.ID, agent.ID, "b.jpg")
	require.NoError(t, err)

	_, err = env.listings.SetMainImage(testCtx(), listing.ID, agent.ID, "ghost.jpg")
	assert.ErrorIs(t, err, model.ErrImageNotInList)

	_, err = env.listings.RemoveImage(testCtx(), listing.ID, agent.ID, "b.jpg")
	require.NoError(t, err)

	reloaded, err = env.listings.GetListing(testCtx(), listing.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StringList{"a.jpg"}, reloaded.ImageURLs)
	assert.Equal(t, "a.jpg", reloaded.MainImageURL, "移除主图后顺延为剩余第一张")
}

func TestImageOperationsRequireOwner(t *testing.T) {
	env := newTestEnv(t)
	agent := env.mustRegister(t, "agent@example.com", model.RoleAgent)
	other := env.mustRegister(t, "other@example.com", model.RoleAgent)
	listing, err := env.listings.CreateListing(testCtx(), agent.ID, validListingAttrs())
	require.NoError(t, err)

	_, err = env.listings.AddImage(testCtx(), listing.ID, other.ID, "a.jpg")
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestToggleAmenityPersists(t *testing.T) {
	env := newTestEnv(t)
	agent := env.mustRegister(t, "agent@example.com", model.RoleAgent)
	listing, err := env.listings.CreateListing(testCtx(), agent.ID, validListingAttrs())
	require.NoError(t, err)

	_, err = env.listings.ToggleAmenity(testCtx(), listing.ID, agent.ID, "parking")
	require.NoError(t, err)
	_, err = env.listings.ToggleAmenity(testCtx(), listing.ID, agent.ID, "balcony")
	require.NoError(t, err)

	reloaded, err := env.listings.GetListing(testCtx(), listing.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StringList{"balcony", "parking"}, reloaded.Amenities)

	// 再拨一次回到原状
	_, err = env.listings.ToggleAmenity(testCtx(), listing.ID, agent.ID, "balcony")
	require.NoError(t, err)

	reloaded, err = env.listings.GetListing(testCtx(), listing.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StringList{"parking"}, reloaded.Amenities)
}

func TestCreateListingWritesOutboxEvent(t *testing.T) {
	env := newTestEnv(t)
	agent := env.mustRegister(t, "agent@example.com", model.RoleAgent)

	_, err := env.listings.CreateListing(testCtx(), agent.ID, validListingAttrs())
	require.NoError(t, err)

	var n int64
	require.NoError(t, env.db.Model(&model.OutboxMessage{}).
		Where("topic = ?", env.cfg.Kafka.Topic.ListingEvents).
		Count(&n).Error)
	assert.Equal(t, int64(1), n)
}
