package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/stylehive/api/internal/domain"
	pfirestore "github.com/stylehive/api/internal/platform/firestore"
)

const paymentMethodsCollection = "paymentMethods"

// PaymentMethodRepository stores provider reference tokens per user. Only
// masked card metadata is persisted.
type PaymentMethodRepository struct {
	provider *pfirestore.Provider
}

// NewPaymentMethodRepository constructs a Firestore-backed payment method repository.
func NewPaymentMethodRepository(provider *pfirestore.Provider) (*PaymentMethodRepository, error) {
	if provider == nil {
		return nil, errors.New("payment method repository requires firestore provider")
	}
	return &PaymentMethodRepository{provider: provider}, nil
}

func (r *PaymentMethodRepository) List(ctx context.Context, userID string) ([]domain.SavedPaymentMethod, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return nil, err
	}

	iter := coll.OrderBy("createdAt", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var methods []domain.SavedPaymentMethod
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("paymentMethods.list", err)
		}
		var doc savedPaymentMethodDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode payment method %s: %w", snap.Ref.ID, err)
		}
		methods = append(methods, doc.toDomain(snap.Ref.ID))
	}
	return methods, nil
}

func (r *PaymentMethodRepository) Get(ctx context.Context, userID string, paymentMethodID string) (domain.SavedPaymentMethod, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return domain.SavedPaymentMethod{}, err
	}
	paymentMethodID = strings.TrimSpace(paymentMethodID)
	if paymentMethodID == "" {
		return domain.SavedPaymentMethod{}, errors.New("payment method repository: id is required")
	}

	snap, err := coll.Doc(paymentMethodID).Get(ctx)
	if err != nil {
		return domain.SavedPaymentMethod{}, pfirestore.WrapError("paymentMethods.get", err)
	}
	var doc savedPaymentMethodDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.SavedPaymentMethod{}, fmt.Errorf("decode payment method %s: %w", paymentMethodID, err)
	}
	return doc.toDomain(paymentMethodID), nil
}

func (r *PaymentMethodRepository) Insert(ctx context.Context, userID string, method domain.SavedPaymentMethod) (domain.SavedPaymentMethod, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return domain.SavedPaymentMethod{}, err
	}
	methodID := strings.TrimSpace(method.ID)
	if methodID == "" {
		return domain.SavedPaymentMethod{}, errors.New("payment method repository: id is required")
	}

	doc := newSavedPaymentMethodDocument(method)
	if _, err := coll.Doc(methodID).Create(ctx, doc); err != nil {
		return domain.SavedPaymentMethod{}, pfirestore.WrapError("paymentMethods.insert", err)
	}
	return doc.toDomain(methodID), nil
}

// Delete removes the stored reference. Deleting an absent method is not an error.
func (r *PaymentMethodRepository) Delete(ctx context.Context, userID string, paymentMethodID string) error {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return err
	}
	paymentMethodID = strings.TrimSpace(paymentMethodID)
	if paymentMethodID == "" {
		return errors.New("payment method repository: id is required")
	}
	if _, err := coll.Doc(paymentMethodID).Delete(ctx); err != nil {
		return pfirestore.WrapError("paymentMethods.delete", err)
	}
	return nil
}

func (r *PaymentMethodRepository) collection(ctx context.Context, userID string) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("payment method repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("payment method repository: user id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(usersCollection).Doc(userID).Collection(paymentMethodsCollection), nil
}

type savedPaymentMethodDocument struct {
	Provider  string    `firestore:"provider"`
	Reference string    `firestore:"reference"`
	Brand     string    `firestore:"brand,omitempty"`
	Last4     string    `firestore:"last4,omitempty"`
	ExpMonth  int       `firestore:"expMonth,omitempty"`
	ExpYear   int       `firestore:"expYear,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func newSavedPaymentMethodDocument(method domain.SavedPaymentMethod) savedPaymentMethodDocument {
	return savedPaymentMethodDocument{
		Provider:  strings.TrimSpace(method.Provider),
		Reference: strings.TrimSpace(method.Reference),
		Brand:     strings.TrimSpace(method.Brand),
		Last4:     strings.TrimSpace(method.Last4),
		ExpMonth:  method.ExpMonth,
		ExpYear:   method.ExpYear,
		CreatedAt: method.CreatedAt.UTC(),
	}
}

func (d savedPaymentMethodDocument) toDomain(id string) domain.SavedPaymentMethod {
	return domain.SavedPaymentMethod{
		ID:        id,
		Provider:  d.Provider,
		Reference: d.Reference,
		Brand:     d.Brand,
		Last4:     d.Last4,
		ExpMonth:  d.ExpMonth,
		ExpYear:   d.ExpYear,
		CreatedAt: d.CreatedAt,
	}
}

func errNotFound(kind, id string) error {
	return status.Errorf(codes.NotFound, "%s %s not found", kind, id)
}
