package inventory

import (
	"fmt"
	"time"
)

const DefaultWarningThreshold = 10

type Inventory struct {
	ID               int64     `json:"id"`
	ProductID        int64     `json:"productId"`
	TotalStock       int       `json:"totalStock"`
	AvailableStock   int       `json:"availableStock"`
	LockedStock      int       `json:"lockedStock"`
	WarningThreshold int       `json:"warningThreshold"`
	CreatedAt        time.Time `json:"createTime"`
	UpdatedAt        time.Time `json:"updateTime"`
}

// Consistent reports whether the counters satisfy
// available+locked == total with neither side negative.
func (i Inventory) Consistent() error {
	if i.AvailableStock < 0 || i.LockedStock < 0 || i.AvailableStock+i.LockedStock != i.TotalStock {
		return fmt.Errorf("inconsistent counters for product %d: total=%d available=%d locked=%d",
			i.ProductID, i.TotalStock, i.AvailableStock, i.LockedStock)
	}
	return nil
}

type OpType string

const (
	OpLock    OpType = "LOCK"
	OpDeduct  OpType = "DEDUCT"
	OpRelease OpType = "RELEASE"
	OpAdd     OpType = "ADD"
	OpSet     OpType = "SET"
)

func (t OpType) Description() string {
	switch t {
	case OpLock:
		return "order locked stock"
	case OpDeduct:
		return "order deducted stock"
	case OpRelease:
		return "order released stock"
	case OpAdd:
		return "stock added"
	case OpSet:
		return "stock set"
	}
	return string(t)
}

// OrderScoped operations move stock on behalf of an order; they are the ones
// replay-checked against the audit trail and pushed to the operation queue.
func (t OpType) OrderScoped() bool {
	return t == OpLock || t == OpDeduct || t == OpRelease
}

// Log is one append-only audit row.
type Log struct {
	ID          int64     `json:"id"`
	ProductID   int64     `json:"productId"`
	OrderID     *int64    `json:"orderId,omitempty"`
	Type        OpType    `json:"operationType"`
	Quantity    int       `json:"quantity"`
	BeforeStock int       `json:"beforeStock"`
	AfterStock  int       `json:"afterStock"`
	Remark      string    `json:"remark"`
	CreatedAt   time.Time `json:"createTime"`
}
