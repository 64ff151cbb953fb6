package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/stylehive/api/internal/domain"
	pfirestore "github.com/stylehive/api/internal/platform/firestore"
)

const addressesCollection = "addresses"

// AddressRepository stores the per-user shipping address book as a
// subcollection under the user document.
type AddressRepository struct {
	provider *pfirestore.Provider
}

// NewAddressRepository constructs a Firestore-backed address repository.
func NewAddressRepository(provider *pfirestore.Provider) (*AddressRepository, error) {
	if provider == nil {
		return nil, errors.New("address repository requires firestore provider")
	}
	return &AddressRepository{provider: provider}, nil
}

func (r *AddressRepository) List(ctx context.Context, userID string) ([]domain.SavedAddress, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return nil, err
	}

	iter := coll.OrderBy("createdAt", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var addresses []domain.SavedAddress
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("addresses.list", err)
		}
		var doc savedAddressDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode address %s: %w", snap.Ref.ID, err)
		}
		addresses = append(addresses, doc.toDomain(snap.Ref.ID))
	}
	return addresses, nil
}

func (r *AddressRepository) Get(ctx context.Context, userID string, addressID string) (domain.SavedAddress, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return domain.SavedAddress{}, err
	}
	addressID = strings.TrimSpace(addressID)
	if addressID == "" {
		return domain.SavedAddress{}, errors.New("address repository: address id is required")
	}

	snap, err := coll.Doc(addressID).Get(ctx)
	if err != nil {
		return domain.SavedAddress{}, pfirestore.WrapError("addresses.get", err)
	}
	var doc savedAddressDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.SavedAddress{}, fmt.Errorf("decode address %s: %w", addressID, err)
	}
	return doc.toDomain(addressID), nil
}

func (r *AddressRepository) Upsert(ctx context.Context, userID string, address domain.SavedAddress) (domain.SavedAddress, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return domain.SavedAddress{}, err
	}
	addressID := strings.TrimSpace(address.ID)
	if addressID == "" {
		return domain.SavedAddress{}, errors.New("address repository: address id is required")
	}

	doc := newSavedAddressDocument(address)
	if _, err := coll.Doc(addressID).Set(ctx, doc); err != nil {
		return domain.SavedAddress{}, pfirestore.WrapError("addresses.upsert", err)
	}
	return doc.toDomain(addressID), nil
}

// Delete removes the address. Deleting an absent address is not an error.
func (r *AddressRepository) Delete(ctx context.Context, userID string, addressID string) error {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return err
	}
	addressID = strings.TrimSpace(addressID)
	if addressID == "" {
		return errors.New("address repository: address id is required")
	}
	if _, err := coll.Doc(addressID).Delete(ctx); err != nil {
		return pfirestore.WrapError("addresses.delete", err)
	}
	return nil
}

// SetDefault flags one address as the default and clears the flag everywhere
// else in the same transaction.
func (r *AddressRepository) SetDefault(ctx context.Context, userID string, addressID string) (domain.SavedAddress, error) {
	if r == nil || r.provider == nil {
		return domain.SavedAddress{}, errors.New("address repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	addressID = strings.TrimSpace(addressID)
	if userID == "" || addressID == "" {
		return domain.SavedAddress{}, errors.New("address repository: user id and address id are required")
	}

	var updated domain.SavedAddress
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		client, err := r.provider.Client(ctx)
		if err != nil {
			return err
		}
		coll := client.Collection(usersCollection).Doc(userID).Collection(addressesCollection)

		snaps, err := tx.Documents(coll).GetAll()
		if err != nil {
			return err
		}

		var target *firestore.DocumentSnapshot
		for _, snap := range snaps {
			if snap.Ref.ID == addressID {
				target = snap
				break
			}
		}
		if target == nil {
			return pfirestore.WrapError("addresses.setDefault", errNotFound("address", addressID))
		}

		now := time.Now().UTC()
		for _, snap := range snaps {
			var doc savedAddressDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode address %s: %w", snap.Ref.ID, err)
			}
			isTarget := snap.Ref.ID == addressID
			if doc.IsDefault == isTarget {
				if isTarget {
					updated = doc.toDomain(snap.Ref.ID)
				}
				continue
			}
			doc.IsDefault = isTarget
			doc.UpdatedAt = now
			if err := tx.Set(snap.Ref, doc); err != nil {
				return err
			}
			if isTarget {
				updated = doc.toDomain(snap.Ref.ID)
			}
		}
		return nil
	})
	if err != nil {
		return domain.SavedAddress{}, wrapOrderError("addresses.setDefault", err)
	}
	return updated, nil
}

func (r *AddressRepository) collection(ctx context.Context, userID string) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("address repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("address repository: user id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(usersCollection).Doc(userID).Collection(addressesCollection), nil
}

type savedAddressDocument struct {
	Label     string          `firestore:"label,omitempty"`
	Address   addressDocument `firestore:"address"`
	IsDefault bool            `firestore:"isDefault"`
	CreatedAt time.Time       `firestore:"createdAt"`
	UpdatedAt time.Time       `firestore:"updatedAt"`
}

func newSavedAddressDocument(address domain.SavedAddress) savedAddressDocument {
	return savedAddressDocument{
		Label:     strings.TrimSpace(address.Label),
		Address:   newAddressDocument(address.Address),
		IsDefault: address.IsDefault,
		CreatedAt: address.CreatedAt.UTC(),
		UpdatedAt: address.UpdatedAt.UTC(),
	}
}

func (d savedAddressDocument) toDomain(id string) domain.SavedAddress {
	return domain.SavedAddress{
		ID:        id,
		Label:     d.Label,
		Address:   d.Address.toDomain(),
		IsDefault: d.IsDefault,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
