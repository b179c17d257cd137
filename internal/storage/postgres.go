package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/faceapi/internal/config"
	"github.com/your-org/faceapi/internal/models"
	"github.com/your-org/faceapi/internal/resultcode"
	"github.com/your-org/faceapi/internal/similarity"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// snapshot runs fn in a read-only repeatable-read transaction so a count and
// its page agree.
func (s *PostgresStore) snapshot(ctx context.Context, fn func(pgx.Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	}, fn)
}

// storeErr keeps classified errors and marks everything else Internal.
func storeErr(op string, err error) error {
	if resultcode.Of(err) == resultcode.Internal {
		return fmt.Errorf("%s: %w: %v", op, resultcode.ErrInternal, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// --- Groups ---

const groupColumns = `id, name, metadata, created_at, updated_at`

func scanGroup(row pgx.Row) (*models.Group, error) {
	g := &models.Group{}
	if err := row.Scan(&g.ID, &g.Name, &g.Metadata, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *PostgresStore) CreateGroup(ctx context.Context, g *models.Group) error {
	if g.Metadata == nil {
		g.Metadata = models.Metadata{}
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO groups (id, name, metadata) VALUES ($1, $2, $3) RETURNING created_at, updated_at`,
		g.ID, g.Name, g.Metadata,
	).Scan(&g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return storeErr("create group", err)
	}
	return nil
}

func (s *PostgresStore) GetGroup(ctx context.Context, id uuid.UUID) (*models.Group, error) {
	g, err := scanGroup(s.pool.QueryRow(ctx, `SELECT `+groupColumns+` FROM groups WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, resultcode.NotFoundf("group %s", id)
	}
	if err != nil {
		return nil, storeErr("get group", err)
	}
	return g, nil
}

func (s *PostgresStore) UpdateGroup(ctx context.Context, id uuid.UUID, name string, metadata models.Metadata) (*models.Group, error) {
	if metadata == nil {
		metadata = models.Metadata{}
	}
	g, err := scanGroup(s.pool.QueryRow(ctx,
		`UPDATE groups SET name = $2, metadata = $3, updated_at = NOW() WHERE id = $1 RETURNING `+groupColumns,
		id, name, metadata))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, resultcode.NotFoundf("group %s", id)
	}
	if err != nil {
		return nil, storeErr("update group", err)
	}
	return g, nil
}

func (s *PostgresStore) DeleteGroup(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return storeErr("delete group", err)
	}
	if tag.RowsAffected() == 0 {
		return resultcode.NotFoundf("group %s", id)
	}
	return nil
}

func (s *PostgresStore) ListGroups(ctx context.Context, req models.PageRequest) (models.Page[models.Group], error) {
	page := models.Page[models.Group]{Items: []models.Group{}, Page: req.Page, Size: req.Size}
	err := s.snapshot(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM groups`).Scan(&page.Total); err != nil {
			return err
		}
		rows, err := tx.Query(ctx,
			`SELECT `+groupColumns+` FROM groups ORDER BY seq LIMIT $1 OFFSET $2`, req.Size, req.Offset())
		if err != nil {
			return err
		}
		page.Items, err = collectGroups(rows)
		return err
	})
	if err != nil {
		return page, storeErr("list groups", err)
	}
	return page, nil
}

func (s *PostgresStore) ListGroupsByPerson(ctx context.Context, personID uuid.UUID, req models.PageRequest) (models.Page[models.Group], error) {
	page := models.Page[models.Group]{Items: []models.Group{}, Page: req.Page, Size: req.Size}
	err := s.snapshot(ctx, func(tx pgx.Tx) error {
		if err := requireRow(ctx, tx, `SELECT 1 FROM persons WHERE id = $1`, personID, "person"); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM person_groups WHERE person_id = $1`, personID).Scan(&page.Total); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `
			SELECT g.id, g.name, g.metadata, g.created_at, g.updated_at
			FROM groups g
			JOIN person_groups pg ON pg.group_id = g.id
			WHERE pg.person_id = $1
			ORDER BY g.seq
			LIMIT $2 OFFSET $3`, personID, req.Size, req.Offset())
		if err != nil {
			return err
		}
		page.Items, err = collectGroups(rows)
		return err
	})
	if err != nil {
		return page, storeErr("list groups by person", err)
	}
	return page, nil
}

func collectGroups(rows pgx.Rows) ([]models.Group, error) {
	groups := []models.Group{}
	defer rows.Close()
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, *g)
	}
	return groups, rows.Err()
}

// UpdateGroupMembership adds and removes persons under a lock on the group row.
// Removing a non-member is a no-op; adding an unknown person is NotFound.
// Locks are taken group first, then the touched persons in id order. Both are
// NO KEY UPDATE: UpdatePerson holding a person row still gets the KEY SHARE
// its person_groups inserts need on the group, and waits here on the person.
func (s *PostgresStore) UpdateGroupMembership(ctx context.Context, groupID uuid.UUID, m models.GroupMembership) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := requireRow(ctx, tx, `SELECT 1 FROM groups WHERE id = $1 FOR NO KEY UPDATE`, groupID, "group"); err != nil {
			return err
		}
		touched := append(append([]uuid.UUID{}, m.Add...), m.Remove...)
		if len(touched) > 0 {
			if _, err := tx.Exec(ctx,
				`SELECT 1 FROM persons WHERE id = ANY($1) ORDER BY id FOR NO KEY UPDATE`, touched); err != nil {
				return err
			}
		}
		if len(m.Remove) > 0 {
			if _, err := tx.Exec(ctx,
				`DELETE FROM person_groups WHERE group_id = $1 AND person_id = ANY($2)`, groupID, m.Remove); err != nil {
				return err
			}
		}
		for _, pid := range m.Add {
			tag, err := tx.Exec(ctx, `
				INSERT INTO person_groups (person_id, group_id)
				SELECT id, $2 FROM persons WHERE id = $1
				ON CONFLICT DO NOTHING`, pid, groupID)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				if err := requireRow(ctx, tx, `SELECT 1 FROM persons WHERE id = $1`, pid, "person"); err != nil {
					return err
				}
			}
			if _, err := tx.Exec(ctx, `UPDATE persons SET updated_at = NOW() WHERE id = $1`, pid); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return storeErr("update group membership", err)
	}
	return nil
}

// --- Persons ---

const personColumns = `id, name, metadata, created_at, updated_at`

func scanPerson(row pgx.Row) (*models.Person, error) {
	p := &models.Person{}
	if err := row.Scan(&p.ID, &p.Name, &p.Metadata, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PostgresStore) CreatePerson(ctx context.Context, p *models.Person) error {
	if p.Metadata == nil {
		p.Metadata = models.Metadata{}
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`INSERT INTO persons (id, name, metadata) VALUES ($1, $2, $3) RETURNING created_at, updated_at`,
			p.ID, p.Name, p.Metadata,
		).Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
			return err
		}
		return setGroups(ctx, tx, p.ID, p.Groups)
	})
	if err != nil {
		return storeErr("create person", err)
	}
	if p.Groups == nil {
		p.Groups = []uuid.UUID{}
	}
	return nil
}

// setGroups replaces a person's memberships. Every group must exist.
func setGroups(ctx context.Context, tx pgx.Tx, personID uuid.UUID, groups []uuid.UUID) error {
	if _, err := tx.Exec(ctx, `DELETE FROM person_groups WHERE person_id = $1`, personID); err != nil {
		return err
	}
	for _, gid := range uniqueIDs(groups) {
		tag, err := tx.Exec(ctx, `
			INSERT INTO person_groups (person_id, group_id)
			SELECT $1, id FROM groups WHERE id = $2`, personID, gid)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return resultcode.NotFoundf("group %s", gid)
		}
	}
	return nil
}

func (s *PostgresStore) GetPerson(ctx context.Context, id uuid.UUID) (*models.Person, error) {
	var p *models.Person
	err := s.snapshot(ctx, func(tx pgx.Tx) error {
		var err error
		p, err = scanPerson(tx.QueryRow(ctx, `SELECT `+personColumns+` FROM persons WHERE id = $1`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return resultcode.NotFoundf("person %s", id)
		}
		if err != nil {
			return err
		}
		return attachGroups(ctx, tx, []*models.Person{p})
	})
	if err != nil {
		return nil, storeErr("get person", err)
	}
	return p, nil
}

// UpdatePerson locks the person row so concurrent updates serialize;
// the last writer wins.
func (s *PostgresStore) UpdatePerson(ctx context.Context, id uuid.UUID, u models.PersonUpdate) (*models.Person, error) {
	var p *models.Person
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		p, err = scanPerson(tx.QueryRow(ctx,
			`SELECT `+personColumns+` FROM persons WHERE id = $1 FOR NO KEY UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return resultcode.NotFoundf("person %s", id)
		}
		if err != nil {
			return err
		}

		if u.Name != nil {
			p.Name = *u.Name
		}
		if u.Metadata != nil {
			p.Metadata = u.Metadata
		}
		if err := tx.QueryRow(ctx,
			`UPDATE persons SET name = $2, metadata = $3, updated_at = NOW() WHERE id = $1 RETURNING updated_at`,
			id, p.Name, p.Metadata,
		).Scan(&p.UpdatedAt); err != nil {
			return err
		}

		if u.Groups != nil {
			if err := setGroups(ctx, tx, id, u.Groups); err != nil {
				return err
			}
		}
		return attachGroups(ctx, tx, []*models.Person{p})
	})
	if err != nil {
		return nil, storeErr("update person", err)
	}
	return p, nil
}

func (s *PostgresStore) DeletePerson(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM persons WHERE id = $1`, id)
	if err != nil {
		return storeErr("delete person", err)
	}
	if tag.RowsAffected() == 0 {
		return resultcode.NotFoundf("person %s", id)
	}
	return nil
}

func (s *PostgresStore) ListPersonsByGroup(ctx context.Context, groupID uuid.UUID, req models.PageRequest) (models.Page[models.Person], error) {
	page := models.Page[models.Person]{Items: []models.Person{}, Page: req.Page, Size: req.Size}
	err := s.snapshot(ctx, func(tx pgx.Tx) error {
		if err := requireRow(ctx, tx, `SELECT 1 FROM groups WHERE id = $1`, groupID, "group"); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM person_groups WHERE group_id = $1`, groupID).Scan(&page.Total); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `
			SELECT p.id, p.name, p.metadata, p.created_at, p.updated_at
			FROM persons p
			JOIN person_groups pg ON pg.person_id = p.id
			WHERE pg.group_id = $1
			ORDER BY p.seq
			LIMIT $2 OFFSET $3`, groupID, req.Size, req.Offset())
		if err != nil {
			return err
		}
		defer rows.Close()

		var ptrs []*models.Person
		for rows.Next() {
			p, err := scanPerson(rows)
			if err != nil {
				return fmt.Errorf("scan person: %w", err)
			}
			ptrs = append(ptrs, p)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if err := attachGroups(ctx, tx, ptrs); err != nil {
			return err
		}
		for _, p := range ptrs {
			page.Items = append(page.Items, *p)
		}
		return nil
	})
	if err != nil {
		return page, storeErr("list persons by group", err)
	}
	return page, nil
}

// attachGroups loads the memberships of every person in one query.
func attachGroups(ctx context.Context, tx pgx.Tx, persons []*models.Person) error {
	if len(persons) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(persons))
	byID := make(map[uuid.UUID]*models.Person, len(persons))
	for i, p := range persons {
		ids[i] = p.ID
		p.Groups = []uuid.UUID{}
		byID[p.ID] = p
	}

	rows, err := tx.Query(ctx, `
		SELECT pg.person_id, pg.group_id
		FROM person_groups pg
		JOIN groups g ON g.id = pg.group_id
		WHERE pg.person_id = ANY($1)
		ORDER BY g.seq`, ids)
	if err != nil {
		return fmt.Errorf("load memberships: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var pid, gid uuid.UUID
		if err := rows.Scan(&pid, &gid); err != nil {
			return fmt.Errorf("scan membership: %w", err)
		}
		byID[pid].Groups = append(byID[pid].Groups, gid)
	}
	return rows.Err()
}

// --- Images ---

const imageColumns = `id, person_id, path, content_type, oracle_version, created_at`

func scanImage(row pgx.Row) (*models.EnrolledImage, error) {
	img := &models.EnrolledImage{}
	if err := row.Scan(&img.ID, &img.PersonID, &img.Path, &img.ContentType, &img.OracleVersion, &img.CreatedAt); err != nil {
		return nil, err
	}
	return img, nil
}

func (s *PostgresStore) AddImage(ctx context.Context, img *models.EnrolledImage) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := requireRow(ctx, tx, `SELECT 1 FROM persons WHERE id = $1 FOR SHARE`, img.PersonID, "person"); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, `
			INSERT INTO images (id, person_id, path, content_type, oracle_version)
			VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
			img.ID, img.PersonID, img.Path, img.ContentType, img.OracleVersion,
		).Scan(&img.CreatedAt); err != nil {
			return err
		}
		return insertDetections(ctx, tx, img.ID, img.Detections)
	})
	if err != nil {
		return storeErr("add image", err)
	}
	return nil
}

func insertDetections(ctx context.Context, tx pgx.Tx, imageID uuid.UUID, dets []models.Detection) error {
	batch := &pgx.Batch{}
	for _, d := range dets {
		batch.Queue(`
			INSERT INTO image_detections
				(image_id, face_index, rect, confidence, landmarks, quality, attributes, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			imageID, d.FaceIndex, d.Rect, d.Confidence, d.Landmarks, d.Quality, d.Attributes,
			pgvector.NewVector(d.Embedding))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		if strings.Contains(err.Error(), "dimensions") {
			return fmt.Errorf("insert detections: %w: %v", resultcode.ErrDimensionMismatch, err)
		}
		return fmt.Errorf("insert detections: %w", err)
	}
	return nil
}

// ReplaceDetections swaps the stored detections of an image for ones produced
// by a newer oracle.
func (s *PostgresStore) ReplaceDetections(ctx context.Context, imageID uuid.UUID, oracleVersion string, dets []models.Detection) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE images SET oracle_version = $2 WHERE id = $1`, imageID, oracleVersion)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return resultcode.NotFoundf("image %s", imageID)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM image_detections WHERE image_id = $1`, imageID); err != nil {
			return err
		}
		return insertDetections(ctx, tx, imageID, dets)
	})
	if err != nil {
		return storeErr("replace detections", err)
	}
	return nil
}

func (s *PostgresStore) GetImage(ctx context.Context, personID, imageID uuid.UUID) (*models.EnrolledImage, error) {
	var img *models.EnrolledImage
	err := s.snapshot(ctx, func(tx pgx.Tx) error {
		var err error
		img, err = scanImage(tx.QueryRow(ctx,
			`SELECT `+imageColumns+` FROM images WHERE id = $1 AND person_id = $2`, imageID, personID))
		if errors.Is(err, pgx.ErrNoRows) {
			return resultcode.NotFoundf("image %s of person %s", imageID, personID)
		}
		if err != nil {
			return err
		}
		return attachDetections(ctx, tx, []*models.EnrolledImage{img})
	})
	if err != nil {
		return nil, storeErr("get image", err)
	}
	return img, nil
}

func (s *PostgresStore) DeleteImage(ctx context.Context, personID, imageID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM images WHERE id = $1 AND person_id = $2`, imageID, personID)
	if err != nil {
		return storeErr("delete image", err)
	}
	if tag.RowsAffected() == 0 {
		return resultcode.NotFoundf("image %s of person %s", imageID, personID)
	}
	return nil
}

func (s *PostgresStore) ListImagesByPerson(ctx context.Context, personID uuid.UUID, req models.PageRequest) (models.Page[models.EnrolledImage], error) {
	page := models.Page[models.EnrolledImage]{Items: []models.EnrolledImage{}, Page: req.Page, Size: req.Size}
	err := s.snapshot(ctx, func(tx pgx.Tx) error {
		if err := requireRow(ctx, tx, `SELECT 1 FROM persons WHERE id = $1`, personID, "person"); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM images WHERE person_id = $1`, personID).Scan(&page.Total); err != nil {
			return err
		}
		rows, err := tx.Query(ctx,
			`SELECT `+imageColumns+` FROM images WHERE person_id = $1 ORDER BY seq LIMIT $2 OFFSET $3`,
			personID, req.Size, req.Offset())
		if err != nil {
			return err
		}
		imgs, err := collectImages(rows)
		if err != nil {
			return err
		}
		if err := attachDetections(ctx, tx, imgs); err != nil {
			return err
		}
		for _, img := range imgs {
			page.Items = append(page.Items, *img)
		}
		return nil
	})
	if err != nil {
		return page, storeErr("list images by person", err)
	}
	return page, nil
}

// ListStaleImages returns images whose detections came from another oracle version.
func (s *PostgresStore) ListStaleImages(ctx context.Context, oracleVersion string) ([]models.EnrolledImage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+imageColumns+` FROM images WHERE oracle_version <> $1 ORDER BY seq`, oracleVersion)
	if err != nil {
		return nil, storeErr("list stale images", err)
	}
	imgs, err := collectImages(rows)
	if err != nil {
		return nil, storeErr("list stale images", err)
	}
	out := make([]models.EnrolledImage, len(imgs))
	for i, img := range imgs {
		out[i] = *img
	}
	return out, nil
}

func collectImages(rows pgx.Rows) ([]*models.EnrolledImage, error) {
	defer rows.Close()
	var imgs []*models.EnrolledImage
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		imgs = append(imgs, img)
	}
	return imgs, rows.Err()
}

func attachDetections(ctx context.Context, tx pgx.Tx, imgs []*models.EnrolledImage) error {
	if len(imgs) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(imgs))
	byID := make(map[uuid.UUID]*models.EnrolledImage, len(imgs))
	for i, img := range imgs {
		ids[i] = img.ID
		img.Detections = []models.Detection{}
		byID[img.ID] = img
	}

	rows, err := tx.Query(ctx, `
		SELECT image_id, face_index, rect, confidence, landmarks, quality, attributes, embedding::real[]
		FROM image_detections
		WHERE image_id = ANY($1)
		ORDER BY image_id, face_index`, ids)
	if err != nil {
		return fmt.Errorf("load detections: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var imageID uuid.UUID
		var d models.Detection
		if err := rows.Scan(&imageID, &d.FaceIndex, &d.Rect, &d.Confidence, &d.Landmarks,
			&d.Quality, &d.Attributes, &d.Embedding); err != nil {
			return fmt.Errorf("scan detection: %w", err)
		}
		byID[imageID].Detections = append(byID[imageID].Detections, d)
	}
	return rows.Err()
}

// --- Gallery ---

// galleryScope restricts a query to persons in groupIDs; an empty slice means every group.
const galleryScope = `($1::uuid[] IS NULL OR i.person_id IN (
	SELECT person_id FROM person_groups WHERE group_id = ANY($1)))`

func scopeArg(groupIDs []uuid.UUID) []uuid.UUID {
	if len(groupIDs) == 0 {
		return nil
	}
	return groupIDs
}

// ScanGallery streams every enrolled embedding in scope to fn.
func (s *PostgresStore) ScanGallery(ctx context.Context, groupIDs []uuid.UUID, fn func(models.GalleryEntry) error) error {
	rows, err := s.pool.Query(ctx, `
		SELECT i.person_id, i.id, i.path, i.content_type, d.embedding::real[]
		FROM image_detections d
		JOIN images i ON i.id = d.image_id
		WHERE `+galleryScope+`
		ORDER BY i.seq, d.face_index`, scopeArg(groupIDs))
	if err != nil {
		return storeErr("scan gallery", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e models.GalleryEntry
		if err := rows.Scan(&e.PersonID, &e.ImageID, &e.Path, &e.ContentType, &e.Embedding); err != nil {
			return storeErr("scan gallery entry", err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return storeErr("scan gallery", err)
	}
	return nil
}

// NearestPersons ranks persons by their closest enrolled embedding using the
// pgvector cosine operator. Scores are on the same scale as similarity.Cosine.
func (s *PostgresStore) NearestPersons(ctx context.Context, embedding []float32, groupIDs []uuid.UUID, minScore float64, limit int) ([]models.PersonMatch, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT person_id, image_id, path, content_type, distance FROM (
			SELECT DISTINCT ON (i.person_id)
				i.person_id, i.id AS image_id, i.path, i.content_type,
				d.embedding <=> $2 AS distance
			FROM image_detections d
			JOIN images i ON i.id = d.image_id
			WHERE `+galleryScope+`
			  AND d.embedding <=> $2 <= $3
			ORDER BY i.person_id, d.embedding <=> $2
		) best
		ORDER BY distance, person_id
		LIMIT $4`,
		scopeArg(groupIDs), pgvector.NewVector(embedding), similarity.ToCosineDistance(minScore), limit)
	if err != nil {
		return nil, nearestErr(err)
	}
	defer rows.Close()

	var out []models.PersonMatch
	for rows.Next() {
		var m models.PersonMatch
		var distance float64
		if err := rows.Scan(&m.PersonID, &m.ImageID, &m.Path, &m.ContentType, &distance); err != nil {
			return nil, storeErr("scan nearest person", err)
		}
		m.Score = similarity.FromCosineDistance(distance)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, nearestErr(err)
	}
	return out, nil
}

// nearestErr classifies pgvector's "different vector dimensions" failure,
// which pgx may surface from Query or from rows.Err.
func nearestErr(err error) error {
	if strings.Contains(err.Error(), "dimensions") {
		return fmt.Errorf("nearest persons: %w: %v", resultcode.ErrDimensionMismatch, err)
	}
	return storeErr("nearest persons", err)
}

func requireRow(ctx context.Context, tx pgx.Tx, query string, id uuid.UUID, kind string) error {
	var one int
	err := tx.QueryRow(ctx, query, id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return resultcode.NotFoundf("%s %s", kind, id)
	}
	return err
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
