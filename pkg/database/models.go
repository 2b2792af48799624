package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Role names seeded at startup. A user holds exactly one at a time.
const (
	RoleAdmin       = "Admin"
	RoleVentas      = "Ventas"
	RoleOperaciones = "Operaciones"
)

// Order statuses are free text; "pending" is the default for new orders.
const OrderStatusPending = "pending"

// BaseModel is embedded by all entities. Version backs optimistic
// concurrency: updates must match the version they read or they fail.
type BaseModel struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Version   int            `gorm:"not null;default:1" json:"version"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate assigns IDs in the application so the same models work on
// Postgres and the sqlite test driver.
func (m *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Version == 0 {
		m.Version = 1
	}
	return nil
}

// Category groups products. Deleting a category with products is rejected.
type Category struct {
	BaseModel
	Name string `gorm:"size:100;not null" json:"name"`
}

// Product is a sellable item. Price and tax are snapshotted onto order
// lines at sale time, so editing a product never rewrites past orders.
type Product struct {
	BaseModel
	Name       string          `gorm:"size:200;not null" json:"name"`
	Price      decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"price"`
	TaxPercent decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"tax_percent"`
	Stock      int             `gorm:"not null;default:0" json:"stock"`
	ImageURL   string          `gorm:"type:text" json:"image_url"`
	IsActive   bool            `gorm:"default:true" json:"is_active"`
	CategoryID uuid.UUID       `gorm:"type:uuid;not null;index" json:"category_id"`
	Category   *Category       `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
}

// Client is a buyer. NationalID and Email carry unique indexes; name and
// phone uniqueness are enforced at the application layer.
type Client struct {
	BaseModel
	Name       string `gorm:"size:200;not null" json:"name"`
	NationalID string `gorm:"size:20;not null;uniqueIndex" json:"national_id"`
	Email      string `gorm:"size:100;not null;uniqueIndex" json:"email"`
	Phone      string `gorm:"size:20;not null" json:"phone"`
}

// ClientAddress belongs to a client and is deleted along with it.
type ClientAddress struct {
	BaseModel
	ClientID  uuid.UUID `gorm:"type:uuid;not null;index" json:"client_id"`
	Province  string    `gorm:"size:100;not null" json:"province"`
	Canton    string    `gorm:"size:100;not null" json:"canton"`
	District  string    `gorm:"size:100;not null" json:"district"`
	IsPrimary bool      `gorm:"default:false" json:"is_primary"`
}

// Order aggregates its lines. Subtotal, Taxes and Total are derived and
// recomputed in the same transaction as any line change.
type Order struct {
	BaseModel
	Date     time.Time       `gorm:"not null" json:"date"`
	Subtotal decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"subtotal"`
	Taxes    decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"taxes"`
	Total    decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"total"`
	Status   string          `gorm:"size:50;not null;default:'pending'" json:"status"`
	ClientID uuid.UUID       `gorm:"type:uuid;not null;index" json:"client_id"`
	Client   *Client         `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	UserID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	User     *User           `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Lines    []OrderLine     `gorm:"foreignKey:OrderID" json:"lines"`
}

// OrderLine snapshots unit price and tax percent at sale time. LineTotal
// is the pre-tax amount: quantity*unit_price - discount, rounded to 2
// decimals. Tax is applied at the order level from line amounts.
type OrderLine struct {
	BaseModel
	OrderID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"order_id"`
	ProductID  uuid.UUID       `gorm:"type:uuid;not null;index" json:"product_id"`
	Product    *Product        `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	Quantity   int             `gorm:"not null" json:"quantity"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"unit_price"`
	Discount   decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"discount"`
	TaxPercent decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"tax_percent"`
	LineTotal  decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"line_total"`
}

// User is a staff member. Roles are held through UserRole rows.
type User struct {
	BaseModel
	Username     string `gorm:"size:50;not null;uniqueIndex" json:"username"`
	Email        string `gorm:"size:256;not null;uniqueIndex" json:"email"`
	FullName     string `gorm:"size:100;not null" json:"full_name"`
	PasswordHash string `gorm:"not null" json:"-"`
}

// Role is one of the seeded roles.
type Role struct {
	BaseModel
	Name string `gorm:"size:50;not null;uniqueIndex" json:"name"`
}

// UserRole joins users to roles. Changing a user's role removes the old
// row and then adds the new one, as two separate writes.
type UserRole struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	RoleID uuid.UUID `gorm:"type:uuid;not null" json:"role_id"`
	Role   *Role     `gorm:"foreignKey:RoleID" json:"role,omitempty"`
}

func (ur *UserRole) BeforeCreate(tx *gorm.DB) error {
	if ur.ID == uuid.Nil {
		ur.ID = uuid.New()
	}
	return nil
}

// ActivityLog tracks staff mutations for the audit trail.
type ActivityLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	User       *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Action     string     `gorm:"size:50;not null" json:"action"`
	EntityType string     `gorm:"size:50" json:"entity_type"`
	EntityID   *uuid.UUID `gorm:"type:uuid" json:"entity_id"`
	Details    string     `gorm:"type:text" json:"details"`
	IPAddress  string     `gorm:"size:50" json:"ip_address"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (l *ActivityLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// Migrate runs database migrations
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Category{},
		&Product{},
		&Client{},
		&ClientAddress{},
		&Order{},
		&OrderLine{},
		&User{},
		&Role{},
		&UserRole{},
		&ActivityLog{},
	)
}
