package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/liuxiaoxue22/market/internal/model"
)

var (
	// ErrOrderNotFound 订单不存在
	ErrOrderNotFound = errors.New("order not found")
)

// OrderFilter 订单列表过滤条件
type OrderFilter struct {
	Seller   string              // 卖家地址，空值不过滤
	Statuses []model.OrderStatus // 状态列表，空值不过滤
}

// OrderRepository 订单仓储接口
//
// 账本是订单行的唯一写入方；所有状态变更都通过条件更新完成，
// 更新是否生效以受影响行数报告，调用方据此判断竞争结果。
type OrderRepository interface {
	// Create 创建订单，账本分配单调递增 ID
	Create(ctx context.Context, order *model.Order) error

	// GetByID 根据 ID 查询订单
	GetByID(ctx context.Context, id int64) (*model.Order, error)

	// List 按条件查询订单列表，id 降序，游标分页
	// cursor 为上一页返回的 next 值，0 表示第一页；
	// 返回下一页游标，0 表示没有更多
	List(ctx context.Context, filter *OrderFilter, cursor int64, limit int) ([]*model.Order, int64, error)

	// ListBucket 查询指定 (status, chainStatus) 桶中的订单，id 升序
	// 供对账扫描使用
	ListBucket(ctx context.Context, status model.OrderStatus, chainStatus model.ChainStatus, limit int) ([]*model.Order, error)

	// CompareAndUpdate 条件更新：仅当当前主状态等于 expected 时应用 updates
	// 返回受影响行数 (0 表示状态已被并发修改)
	CompareAndUpdate(ctx context.Context, id int64, expected model.OrderStatus, updates map[string]interface{}) (int64, error)

	// Claim 抢单：仅当订单仍可抢时原子地置为 LOCKED 并记录买家和买单哈希
	// 返回是否抢到。这是唯一的买方竞争点，必须在存储层原子执行
	Claim(ctx context.Context, id int64, buyer string, buyHash string) (bool, error)

	// MarkCanceling 取消：仅当订单属于 seller 且可取消时置为 CANCELING
	MarkCanceling(ctx context.Context, id int64, seller string, cancelHash string) (bool, error)

	// SetTradeHash 记录平台转账哈希，仅当尚未记录过
	// trade_hash 已存在即不再写入，作为防重复转账的幂等屏障
	SetTradeHash(ctx context.Context, id int64, tradeHash string) (bool, error)
}

// orderRepository 订单仓储实现
type orderRepository struct {
	*Repository
}

// NewOrderRepository 创建订单仓储
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{Repository: NewRepository(db)}
}

// Create 创建订单
// 主状态与链上子状态的组合必须满足状态机约束
func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	if !order.ChainStatus.ValidForStatus(order.Status) {
		return fmt.Errorf("invalid order status combination: %s/%s", order.Status, order.ChainStatus)
	}
	if err := r.DB(ctx).Create(order).Error; err != nil {
		return fmt.Errorf("create order failed: %w", err)
	}
	return nil
}

// GetByID 根据 ID 查询订单
func (r *orderRepository) GetByID(ctx context.Context, id int64) (*model.Order, error) {
	var order model.Order
	err := r.DB(ctx).Where("id = ?", id).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order failed: %w", err)
	}
	return &order, nil
}

// List 按条件查询订单列表，id 降序，游标分页
func (r *orderRepository) List(ctx context.Context, filter *OrderFilter, cursor int64, limit int) ([]*model.Order, int64, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	query := r.DB(ctx).Model(&model.Order{})
	if filter != nil {
		if filter.Seller != "" {
			query = query.Where("seller = ?", filter.Seller)
		}
		if len(filter.Statuses) > 0 {
			query = query.Where("status IN ?", filter.Statuses)
		}
	}
	if cursor > 0 {
		query = query.Where("id <= ?", cursor)
	}

	var orders []*model.Order
	// 多取一条作为下一页游标
	if err := query.Order("id DESC").Limit(limit + 1).Find(&orders).Error; err != nil {
		return nil, 0, fmt.Errorf("list orders failed: %w", err)
	}

	var next int64
	if len(orders) > limit {
		next = orders[limit].ID
		orders = orders[:limit]
	}
	return orders, next, nil
}

// ListBucket 查询指定 (status, chainStatus) 桶中的订单，id 升序
func (r *orderRepository) ListBucket(ctx context.Context, status model.OrderStatus, chainStatus model.ChainStatus, limit int) ([]*model.Order, error) {
	var orders []*model.Order
	query := r.DB(ctx).
		Where("status = ? AND chain_status = ?", status, chainStatus).
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("list bucket orders failed: %w", err)
	}
	return orders, nil
}

// CompareAndUpdate 条件更新
// 终态行冻结；带主状态变更的更新必须是状态机允许的转换
func (r *orderRepository) CompareAndUpdate(ctx context.Context, id int64, expected model.OrderStatus, updates map[string]interface{}) (int64, error) {
	if expected.IsTerminal() {
		return 0, fmt.Errorf("order in terminal status %s is frozen", expected)
	}
	if next, ok := updates["status"].(model.OrderStatus); ok && !expected.CanTransitionTo(next) {
		return 0, fmt.Errorf("illegal status transition: %s -> %s", expected, next)
	}
	updates["updated_at"] = nowMilli()
	result := r.DB(ctx).Model(&model.Order{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(updates)
	if result.Error != nil {
		return 0, fmt.Errorf("conditional update failed: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Claim 抢单
func (r *orderRepository) Claim(ctx context.Context, id int64, buyer string, buyHash string) (bool, error) {
	result := r.DB(ctx).Model(&model.Order{}).
		Where("id = ? AND status IN ?", id, []model.OrderStatus{
			model.OrderStatusPending, model.OrderStatusListing,
		}).
		Updates(map[string]interface{}{
			"status":     model.OrderStatusLocked,
			"buyer":      buyer,
			"buy_hash":   buyHash,
			"updated_at": nowMilli(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("claim order failed: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// MarkCanceling 取消
func (r *orderRepository) MarkCanceling(ctx context.Context, id int64, seller string, cancelHash string) (bool, error) {
	result := r.DB(ctx).Model(&model.Order{}).
		Where("id = ? AND seller = ? AND status IN ?", id, seller, []model.OrderStatus{
			model.OrderStatusPending, model.OrderStatusListing,
		}).
		Updates(map[string]interface{}{
			"status":      model.OrderStatusCanceling,
			"cancel_hash": cancelHash,
			"updated_at":  nowMilli(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("mark canceling failed: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// SetTradeHash 记录平台转账哈希
func (r *orderRepository) SetTradeHash(ctx context.Context, id int64, tradeHash string) (bool, error) {
	result := r.DB(ctx).Model(&model.Order{}).
		Where("id = ? AND status = ? AND chain_status = ? AND trade_hash = ''",
			id, model.OrderStatusLocked, model.ChainStatusBuyBlockConfirmed).
		Updates(map[string]interface{}{
			"trade_hash": tradeHash,
			"updated_at": nowMilli(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("set trade hash failed: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}
