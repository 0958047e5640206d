package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/dujiao-next/voucher-ledger/internal/authz"
	"github.com/dujiao-next/voucher-ledger/internal/config"
	"github.com/dujiao-next/voucher-ledger/internal/constants"
	"github.com/dujiao-next/voucher-ledger/internal/logger"
	"github.com/dujiao-next/voucher-ledger/internal/models"
	"github.com/dujiao-next/voucher-ledger/internal/service"

	"gorm.io/gorm"
)

type seedVoucher struct {
	BrandSlug    string
	Title        string
	Amount       string
	IsPercentage bool
	SalePrice    string
	ValidMonths  int
	Quantity     int
	Unlimited    bool
}

type seedAdmin struct {
	ID       uint
	Username string
	Roles    []string
	IsSuper  bool
}

func main() {
	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}, cfg.Database.Debug); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	// 品牌
	brands := []models.Brand{
		{Name: "Star Coffee", Slug: "star-coffee", IsActive: true},
		{Name: "Green Grocer", Slug: "green-grocer", IsActive: true},
		{Name: "Retro Cinema", Slug: "retro-cinema", IsActive: true},
	}
	brandIDs := map[string]uint{}
	for _, brand := range brands {
		var existing models.Brand
		err := models.DB.Where("slug = ?", brand.Slug).First(&existing).Error
		switch {
		case err == nil:
			stdLog.Printf("Brand already exists: %s", brand.Slug)
			brandIDs[brand.Slug] = existing.ID
		case errors.Is(err, gorm.ErrRecordNotFound):
			item := brand
			if err := models.DB.Create(&item).Error; err != nil {
				stdLog.Printf("Failed to create brand %s: %v", brand.Slug, err)
				continue
			}
			stdLog.Printf("Created brand: %s", brand.Slug)
			brandIDs[brand.Slug] = item.ID
		default:
			stdLog.Printf("Failed to load brand %s: %v", brand.Slug, err)
		}
	}

	// 代金券
	vouchers := []seedVoucher{
		{BrandSlug: "star-coffee", Title: "Latte 30", Amount: "30", ValidMonths: 6, Quantity: 120},
		{BrandSlug: "star-coffee", Title: "Breakfast 15% off", Amount: "15", IsPercentage: true, SalePrice: "9.90", ValidMonths: 1, Quantity: 4},
		{BrandSlug: "green-grocer", Title: "Fresh Basket 100", Amount: "100", ValidMonths: 12, Quantity: 40},
		{BrandSlug: "retro-cinema", Title: "Double Feature", Amount: "60", Unlimited: true},
	}
	for _, item := range vouchers {
		brandID, ok := brandIDs[item.BrandSlug]
		if !ok {
			stdLog.Printf("Skip voucher %s: brand %s missing", item.Title, item.BrandSlug)
			continue
		}
		var count int64
		if err := models.DB.Model(&models.Voucher{}).Where("title = ? AND brand_id = ?", item.Title, brandID).Count(&count).Error; err != nil {
			stdLog.Printf("Failed to check voucher %s: %v", item.Title, err)
			continue
		}
		if count > 0 {
			stdLog.Printf("Voucher already exists: %s", item.Title)
			continue
		}
		voucher := models.Voucher{
			Title:        item.Title,
			Amount:       models.MustMoney(item.Amount),
			IsPercentage: item.IsPercentage,
			BrandID:      &brandID,
			ValidMonths:  item.ValidMonths,
			Quantity:     item.Quantity,
			Unlimited:    item.Unlimited,
			IsActive:     true,
		}
		if item.SalePrice != "" {
			voucher.SalePrice = models.MustMoney(item.SalePrice)
		}
		if err := models.DB.Create(&voucher).Error; err != nil {
			stdLog.Printf("Failed to create voucher %s: %v", item.Title, err)
			continue
		}
		stdLog.Printf("Created voucher: %s (id=%d)", item.Title, voucher.ID)
	}

	// 用户与钱包
	users := []struct {
		Email   string
		Name    string
		Balance string
	}{
		{Email: "alice@example.com", Name: "Alice", Balance: "500"},
		{Email: "bob@example.com", Name: "Bob", Balance: "80"},
	}
	userTokens := map[string]string{}
	for _, item := range users {
		var user models.User
		err := models.DB.Where("email = ?", item.Email).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			user = models.User{Email: item.Email, DisplayName: item.Name, Status: constants.UserStatusActive}
			if err := models.DB.Create(&user).Error; err != nil {
				stdLog.Printf("Failed to create user %s: %v", item.Email, err)
				continue
			}
			account := models.WalletAccount{UserID: user.ID, Balance: models.MustMoney(item.Balance)}
			if err := models.DB.Create(&account).Error; err != nil {
				stdLog.Printf("Failed to create wallet for %s: %v", item.Email, err)
			}
			stdLog.Printf("Created user: %s (balance %s)", item.Email, item.Balance)
		} else if err != nil {
			stdLog.Printf("Failed to load user %s: %v", item.Email, err)
			continue
		} else {
			stdLog.Printf("User already exists: %s", item.Email)
		}
		if token, _, err := service.IssueUserToken(cfg.UserJWT.SecretKey, user.ID, user.Email, 24*time.Hour); err == nil {
			userTokens[item.Email] = token
		}
	}

	// 管理员角色
	authzService, err := authz.NewService(models.DB)
	if err != nil {
		stdLog.Fatalf("Failed to init authz: %v", err)
	}
	if err := authzService.BootstrapBuiltinRoles(); err != nil {
		stdLog.Fatalf("Failed to bootstrap roles: %v", err)
	}
	admins := []seedAdmin{
		{ID: 1, Username: "root", IsSuper: true},
		{ID: 2, Username: "ops", Roles: []string{"operations"}},
		{ID: 3, Username: "cashier", Roles: []string{"finance"}},
		{ID: 4, Username: "auditor", Roles: []string{"readonly_auditor"}},
	}
	adminTokens := map[string]string{}
	for _, admin := range admins {
		if len(admin.Roles) > 0 {
			if err := authzService.SetAdminRoles(admin.ID, admin.Roles); err != nil {
				stdLog.Printf("Failed to assign roles for %s: %v", admin.Username, err)
				continue
			}
		}
		token, _, err := service.IssueAdminToken(cfg.JWT.SecretKey, admin.ID, admin.Username, admin.IsSuper, 24*time.Hour)
		if err != nil {
			stdLog.Printf("Failed to issue token for %s: %v", admin.Username, err)
			continue
		}
		adminTokens[admin.Username] = token
	}

	fmt.Println("Seed completed. Development tokens (24h):")
	for _, admin := range admins {
		if token, ok := adminTokens[admin.Username]; ok {
			fmt.Printf("  admin %-8s %s\n", admin.Username, token)
		}
	}
	for _, item := range users {
		if token, ok := userTokens[item.Email]; ok {
			fmt.Printf("  user  %-18s %s\n", item.Email, token)
		}
	}
}
