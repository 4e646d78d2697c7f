package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/domain"
	"storefront/internal/repos"
	"storefront/internal/storage"
)

// Upload is an image received in a multipart form.
type Upload struct {
	ContentType string
	Size        int64
	Body        io.Reader
}

func putImage(ctx context.Context, store storage.ImageStore, prefix, owner string, up *Upload) (string, error) {
	if store == nil {
		return "", fmt.Errorf("%w: image uploads are not configured", ErrInvalidInput)
	}
	key, err := storage.NewKey(prefix, owner, up.ContentType)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return store.Put(ctx, key, up.ContentType, up.Body, up.Size)
}

// ProductInput holds the editable product fields, already validated.
type ProductInput struct {
	Name        string
	Description *string
	Price       decimal.Decimal
	Stock       int
}

type ProductAdminService struct {
	Prods  *repos.ProductRepo
	Images storage.ImageStore
}

func NewProductAdminService(prods *repos.ProductRepo, images storage.ImageStore) *ProductAdminService {
	return &ProductAdminService{Prods: prods, Images: images}
}

func (s *ProductAdminService) List(q string) ([]domain.Product, error) {
	return s.Prods.List(q, 500, 0)
}

func (s *ProductAdminService) Get(id string) (domain.Product, error) {
	p, err := s.Prods.Get(id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, ErrNotFound
	}
	return p, err
}

func (s *ProductAdminService) Create(ctx context.Context, in ProductInput, img *Upload) (domain.Product, error) {
	p := domain.Product{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
	}
	// Insert before uploading; a failed upload removes the row.
	if err := s.Prods.Create(p); err != nil {
		return domain.Product{}, err
	}
	if img != nil {
		url, err := putImage(ctx, s.Images, "products", p.ID, img)
		if err != nil {
			_ = s.Prods.Delete(p.ID)
			return domain.Product{}, err
		}
		p.ImageURL = &url
		if err := s.Prods.Update(p); err != nil {
			return domain.Product{}, err
		}
	}
	return s.Prods.Get(p.ID)
}

// Update replaces the editable fields; the image only changes when img is set.
func (s *ProductAdminService) Update(ctx context.Context, id string, in ProductInput, img *Upload) (domain.Product, error) {
	p, err := s.Get(id)
	if err != nil {
		return domain.Product{}, err
	}
	p.Name = in.Name
	p.Description = in.Description
	p.Price = in.Price
	p.Stock = in.Stock
	if img != nil {
		url, err := putImage(ctx, s.Images, "products", p.ID, img)
		if err != nil {
			return domain.Product{}, err
		}
		p.ImageURL = &url
	}
	if err := s.Prods.Update(p); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, ErrNotFound
		}
		return domain.Product{}, err
	}
	return s.Prods.Get(p.ID)
}

func (s *ProductAdminService) Delete(id string) error {
	if err := s.Prods.Delete(id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

type UserAdminService struct {
	Users  *repos.UserRepo
	Images storage.ImageStore
}

func NewUserAdminService(users *repos.UserRepo, images storage.ImageStore) *UserAdminService {
	return &UserAdminService{Users: users, Images: images}
}

// UserInput is the admin form for a user. Password is only applied when set.
type UserInput struct {
	Email    string
	Name     string
	Role     string
	Password string
}

func (s *UserAdminService) List() ([]domain.User, error) {
	return s.Users.List()
}

func (s *UserAdminService) Get(id string) (*domain.User, error) {
	u, err := s.Users.ByID(id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

func (s *UserAdminService) roleID(name string) (string, error) {
	id, err := s.Users.RoleIDByName(name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, name)
	}
	return id, err
}

func (s *UserAdminService) Create(in UserInput) (*domain.User, error) {
	if in.Password == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	if _, err := s.Users.ByEmail(in.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	roleID, err := s.roleID(in.Role)
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := domain.User{ID: uuid.NewString(), Email: strings.ToLower(in.Email), Name: in.Name, Hash: string(hash), RoleID: &roleID}
	if err := s.Users.Create(u); err != nil {
		return nil, err
	}
	return s.Users.ByID(u.ID)
}

func (s *UserAdminService) Update(id string, in UserInput) (*domain.User, error) {
	u, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(u.Email, in.Email) {
		if other, err := s.Users.ByEmail(in.Email); err == nil && other.ID != id {
			return nil, ErrEmailTaken
		}
	}
	roleID, err := s.roleID(in.Role)
	if err != nil {
		return nil, err
	}
	u.Email = strings.ToLower(in.Email)
	u.Name = in.Name
	u.RoleID = &roleID
	if err := s.Users.Update(*u); err != nil {
		return nil, err
	}
	if in.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		if err := s.Users.SetPassword(id, string(hash)); err != nil {
			return nil, err
		}
	}
	return s.Users.ByID(id)
}

// Delete removes the user, their sessions and cart. Their orders remain,
// without an owner.
func (s *UserAdminService) Delete(id string) error {
	if err := s.Users.DeleteUserCascade(id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// UpdateProfile lets a user change their own display name.
func (s *UserAdminService) UpdateProfile(userID, name string) (*domain.User, error) {
	if err := s.Users.UpdateName(userID, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.Users.ByID(userID)
}

func (s *UserAdminService) UploadAvatar(ctx context.Context, userID string, img *Upload) (*domain.User, error) {
	url, err := putImage(ctx, s.Images, "avatars", userID, img)
	if err != nil {
		return nil, err
	}
	if err := s.Users.SetAvatar(userID, url); err != nil {
		return nil, err
	}
	return s.Users.ByID(userID)
}
