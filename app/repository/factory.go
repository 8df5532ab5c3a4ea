package repository

import (
	"context"
	"sync"

	"gorm.io/gorm"
)

// Repositories bundles all repository instances over one DB handle.
type Repositories struct {
	User        UserRepository
	Entitlement EntitlementRepository
	Order       OrderRepository
	Analysis    AnalysisRepository
}

// NewRepositories creates all repositories backed by the given DB handle.
// The handle may be a transaction; repositories built from it share its scope.
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:        NewUserRepository(db),
		Entitlement: NewEntitlementRepository(db),
		Order:       NewOrderRepository(db),
		Analysis:    NewAnalysisRepository(db),
	}
}

// Factory manages repository instances and ensures they are singletons
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	once  sync.Once
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{
		db: db,
	}
}

// GetRepositories returns a singleton instance of all repositories
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db)
	})
	return f.repos
}

// GetUserRepository returns the user repository instance
func (f *Factory) GetUserRepository() UserRepository {
	return f.GetRepositories().User
}

// GetEntitlementRepository returns the entitlement repository instance
func (f *Factory) GetEntitlementRepository() EntitlementRepository {
	return f.GetRepositories().Entitlement
}

// GetOrderRepository returns the order repository instance
func (f *Factory) GetOrderRepository() OrderRepository {
	return f.GetRepositories().Order
}

// GetAnalysisRepository returns the analysis repository instance
func (f *Factory) GetAnalysisRepository() AnalysisRepository {
	return f.GetRepositories().Analysis
}

// WithTransaction runs fn with a Repositories set scoped to one database
// transaction. The payment reconciler uses this so the order ledger upsert
// and the entitlement grant commit or roll back together.
func (f *Factory) WithTransaction(ctx context.Context, fn func(repos *Repositories) error) error {
	return f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}

// Global factory instance
var globalFactory *Factory
var factoryOnce sync.Once

// InitializeFactory initializes the global repository factory
func InitializeFactory(db *gorm.DB) {
	factoryOnce.Do(func() {
		globalFactory = NewFactory(db)
	})
}

// GetGlobalFactory returns the global repository factory instance
func GetGlobalFactory() *Factory {
	if globalFactory == nil {
		panic("Repository factory not initialized. Call InitializeFactory first.")
	}
	return globalFactory
}

// GetGlobalRepositories returns the global repositories instance
func GetGlobalRepositories() *Repositories {
	return GetGlobalFactory().GetRepositories()
}
