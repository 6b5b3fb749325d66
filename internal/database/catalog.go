package database

import (
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/bizzlechizzle/aupat-sub000/internal/aupat"
	"github.com/bizzlechizzle/aupat-sub000/internal/model"
)

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Locations

var locationColumns = []string{"id", "name", "region", "type", "sub_type", "created_at"}

func scanLocation(row scanner) (*model.Location, error) {
	loc := &model.Location{}
	if err := row.Scan(&loc.ID, &loc.Name, &loc.Region, &loc.Type, &loc.SubType, &loc.CreatedAt); err != nil {
		return nil, err
	}
	return loc, nil
}

func (s *SQLiteDatabase) CreateLocation(loc *model.Location) error {
	_, err := exec(s.db, psql.Insert("locations").
		Columns(locationColumns...).
		Values(loc.ID, loc.Name, loc.Region, loc.Type, loc.SubType, loc.CreatedAt))
	if err != nil {
		return fmt.Errorf("creating location: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FindLocationByID(id string) (*model.Location, error) {
	query, args, err := psql.Select(locationColumns...).From("locations").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}
	loc, err := scanLocation(s.db.QueryRow(query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding location: %w", err)
	}
	return loc, nil
}

func (s *SQLiteDatabase) ListLocations() ([]*model.Location, error) {
	query, args, err := psql.Select(locationColumns...).From("locations").OrderBy("region", "type", "name").ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing locations: %w", err)
	}
	defer rows.Close()

	var locs []*model.Location
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning location: %w", err)
		}
		locs = append(locs, loc)
	}
	return locs, rows.Err()
}

// Sub-locations

var subLocationColumns = []string{"id", "location_id", "name", "created_at"}

func scanSubLocation(row scanner) (*model.SubLocation, error) {
	sub := &model.SubLocation{}
	if err := row.Scan(&sub.ID, &sub.LocationID, &sub.Name, &sub.CreatedAt); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *SQLiteDatabase) CreateSubLocation(sub *model.SubLocation) error {
	_, err := exec(s.db, psql.Insert("sub_locations").
		Columns(subLocationColumns...).
		Values(sub.ID, sub.LocationID, sub.Name, sub.CreatedAt))
	if err != nil {
		return fmt.Errorf("creating sub-location: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FindSubLocationByID(id string) (*model.SubLocation, error) {
	query, args, err := psql.Select(subLocationColumns...).From("sub_locations").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}
	sub, err := scanSubLocation(s.db.QueryRow(query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding sub-location: %w", err)
	}
	return sub, nil
}

func (s *SQLiteDatabase) ListSubLocations(locationID string) ([]*model.SubLocation, error) {
	query, args, err := psql.Select(subLocationColumns...).
		From("sub_locations").
		Where(sq.Eq{"location_id": locationID}).
		OrderBy("name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sub-locations: %w", err)
	}
	defer rows.Close()

	var subs []*model.SubLocation
	for rows.Next() {
		sub, err := scanSubLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning sub-location: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// Assets

var assetColumns = []string{
	"id", "asset_class", "sha256", "short_digest", "original_path", "archive_path",
	"category", "make", "model", "location_id", "sub_location_id", "state", "job_id",
	"created_at", "updated_at",
}

func scanAsset(row scanner) (*model.Asset, error) {
	a := &model.Asset{}
	err := row.Scan(&a.ID, &a.Class, &a.SHA256, &a.ShortDigest, &a.OriginalPath, &a.ArchivePath,
		&a.Category, &a.Make, &a.Model, &a.LocationID, &a.SubLocationID, &a.State, &a.JobID,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func insertAsset(q querier, a *model.Asset) error {
	_, err := exec(q, psql.Insert("assets").
		Columns(assetColumns...).
		Values(a.ID, a.Class, a.SHA256, a.ShortDigest, a.OriginalPath, a.ArchivePath,
			a.Category, a.Make, a.Model, a.LocationID, a.SubLocationID, a.State, a.JobID,
			a.CreatedAt, a.UpdatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s %s", aupat.ErrDuplicateContent, a.Class, a.SHA256)
	}
	return err
}

func (s *SQLiteDatabase) queryAssets(b sq.SelectBuilder) ([]*model.Asset, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []*model.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning asset: %w", err)
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

func (s *SQLiteDatabase) findAsset(where sq.Sqlizer) (*model.Asset, error) {
	query, args, err := psql.Select(assetColumns...).From("assets").Where(where).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}
	a, err := scanAsset(s.db.QueryRow(query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

func (s *SQLiteDatabase) FindAssetByDigest(class model.AssetClass, sha256 string) (*model.Asset, error) {
	a, err := s.findAsset(sq.And{
		sq.Eq{"asset_class": class, "sha256": sha256},
		sq.NotEq{"state": model.StateVerificationFailed},
	})
	if err != nil {
		return nil, fmt.Errorf("finding asset by digest: %w", err)
	}
	return a, nil
}

func (s *SQLiteDatabase) FindAssetByID(id string) (*model.Asset, error) {
	a, err := s.findAsset(sq.Eq{"id": id})
	if err != nil {
		return nil, fmt.Errorf("finding asset: %w", err)
	}
	return a, nil
}

func (s *SQLiteDatabase) ListAssetsByLocation(locationID string) ([]*model.Asset, error) {
	assets, err := s.queryAssets(psql.Select(assetColumns...).
		From("assets").
		Where(sq.Eq{"location_id": locationID}).
		OrderBy("archive_path"))
	if err != nil {
		return nil, fmt.Errorf("listing assets by location: %w", err)
	}
	return assets, nil
}

func (s *SQLiteDatabase) ListAssetsByJob(jobID string, states ...model.AssetState) ([]*model.Asset, error) {
	b := psql.Select(assetColumns...).From("assets").Where(sq.Eq{"job_id": jobID})
	if len(states) > 0 {
		b = b.Where(sq.Eq{"state": states})
	}
	assets, err := s.queryAssets(b.OrderBy("created_at", "id"))
	if err != nil {
		return nil, fmt.Errorf("listing assets by job: %w", err)
	}
	return assets, nil
}

func (s *SQLiteDatabase) ReassignAssetLocation(assetID, locationID string, subLocationID *string) error {
	sub := sql.NullString{}
	if subLocationID != nil {
		sub = sql.NullString{String: *subLocationID, Valid: true}
	}
	res, err := exec(s.db, psql.Update("assets").
		Set("location_id", locationID).
		Set("sub_location_id", sub).
		Set("updated_at", s.now()).
		Where(sq.Eq{"id": assetID}))
	if err != nil {
		return fmt.Errorf("reassigning asset: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("asset not found: %s", assetID)
	}
	return nil
}

func (s *SQLiteDatabase) UpdateAssetStates(ids []string, from, to model.AssetState) error {
	if len(ids) == 0 {
		return nil
	}
	if !from.CanTransition(to) {
		return fmt.Errorf("invalid asset transition %s -> %s", from, to)
	}
	_, err := exec(s.db, updateStates(ids, from, to, s.now()))
	if err != nil {
		return fmt.Errorf("updating asset states: %w", err)
	}
	return nil
}

func updateStates(ids []string, from, to model.AssetState, now any) sq.UpdateBuilder {
	return psql.Update("assets").
		Set("state", to).
		Set("updated_at", now).
		Where(sq.Eq{"id": ids, "state": from})
}
