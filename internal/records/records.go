// Package records layers typed repositories over the abstract record store so
// domain services never touch raw documents. The document id is authoritative;
// ids embedded in the JSON body are overwritten on read.
package records

import (
	"context"
	"encoding/json"
	"fmt"

	"certproof/internal/docstore"
	"certproof/internal/domain"
)

// ErrNotFound re-exports the store sentinel for callers that do not import
// docstore directly.
var ErrNotFound = docstore.ErrNotFound

const (
	certSeq  = "cert_id"
	proofSeq = "proof_seq"
)

// Students accesses the student record collection.
type Students struct {
	store docstore.Store
}

func NewStudents(store docstore.Store) Students {
	return Students{store: store}
}

func (s Students) All(ctx context.Context) ([]domain.StudentRecord, error) {
	docs, err := s.store.ListAll(ctx, docstore.KindStudents)
	if err != nil {
		return nil, err
	}
	students := make([]domain.StudentRecord, 0, len(docs))
	for _, d := range docs {
		var rec domain.StudentRecord
		if err := json.Unmarshal(d.Doc, &rec); err != nil {
			return nil, fmt.Errorf("decode student %d: %w", d.ID, err)
		}
		rec.ID = d.ID
		students = append(students, rec)
	}
	return students, nil
}

func (s Students) ByID(ctx context.Context, id int64) (domain.StudentRecord, error) {
	d, err := s.store.Get(ctx, docstore.KindStudents, id)
	if err != nil {
		return domain.StudentRecord{}, err
	}
	var rec domain.StudentRecord
	if err := json.Unmarshal(d.Doc, &rec); err != nil {
		return domain.StudentRecord{}, fmt.Errorf("decode student %d: %w", id, err)
	}
	rec.ID = d.ID
	return rec, nil
}

// Insert allocates the next sequential student id (max existing + 1) and
// returns the stored record with it set.
func (s Students) Insert(ctx context.Context, rec domain.StudentRecord) (domain.StudentRecord, error) {
	doc, err := json.Marshal(rec)
	if err != nil {
		return domain.StudentRecord{}, err
	}
	id, err := s.store.Insert(ctx, docstore.KindStudents, doc)
	if err != nil {
		return domain.StudentRecord{}, err
	}
	rec.ID = id
	return rec, nil
}

func (s Students) Update(ctx context.Context, rec domain.StudentRecord) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.store.Update(ctx, docstore.KindStudents, rec.ID, doc)
}

// DeleteByUploader removes every record attributed to the issuer and returns
// how many went away.
func (s Students) DeleteByUploader(ctx context.Context, issuer string) (int, error) {
	return s.store.DeleteWhere(ctx, docstore.KindStudents, func(d docstore.Document) bool {
		var rec domain.StudentRecord
		if err := json.Unmarshal(d.Doc, &rec); err != nil {
			return false
		}
		return rec.UploadedBy == issuer
	})
}

// Proofs accesses the append-only integrity log.
type Proofs struct {
	store docstore.Store
}

func NewProofs(store docstore.Store) Proofs {
	return Proofs{store: store}
}

// Append stores a new proof under a monotonic sequence number. Entries are
// never updated; superseded proofs remain for audit.
func (p Proofs) Append(ctx context.Context, proof domain.Proof) (domain.Proof, error) {
	seq, err := p.store.NextSeq(ctx, proofSeq)
	if err != nil {
		return domain.Proof{}, err
	}
	proof.Seq = seq
	doc, err := json.Marshal(proof)
	if err != nil {
		return domain.Proof{}, err
	}
	if err := p.store.Put(ctx, docstore.KindProofs, seq, doc); err != nil {
		return domain.Proof{}, err
	}
	return proof, nil
}

// Latest returns the most recently appended proof for a student, decided by
// sequence number rather than timestamp so clock skew cannot reorder entries.
func (p Proofs) Latest(ctx context.Context, studentID int64) (domain.Proof, error) {
	docs, err := p.store.ListAll(ctx, docstore.KindProofs)
	if err != nil {
		return domain.Proof{}, err
	}
	var latest domain.Proof
	found := false
	for _, d := range docs {
		var proof domain.Proof
		if err := json.Unmarshal(d.Doc, &proof); err != nil {
			return domain.Proof{}, fmt.Errorf("decode proof %d: %w", d.ID, err)
		}
		proof.Seq = d.ID
		if proof.StudentID == studentID && (!found || proof.Seq > latest.Seq) {
			latest = proof
			found = true
		}
	}
	if !found {
		return domain.Proof{}, ErrNotFound
	}
	return latest, nil
}

// DeleteOrphans drops proofs whose student no longer exists.
func (p Proofs) DeleteOrphans(ctx context.Context, surviving map[int64]bool) (int, error) {
	return p.store.DeleteWhere(ctx, docstore.KindProofs, func(d docstore.Document) bool {
		var proof domain.Proof
		if err := json.Unmarshal(d.Doc, &proof); err != nil {
			return false
		}
		return !surviving[proof.StudentID]
	})
}

// Certificates accesses issued certificate descriptors. Documents are keyed by
// cert_id, which comes from a persistent sequence so ids are never reused even
// after an issuer-scoped bulk clear.
type Certificates struct {
	store docstore.Store
}

func NewCertificates(store docstore.Store) Certificates {
	return Certificates{store: store}
}

func (c Certificates) NextCertID(ctx context.Context) (int64, error) {
	return c.store.NextSeq(ctx, certSeq)
}

func (c Certificates) ByCertID(ctx context.Context, certID int64) (domain.Certificate, error) {
	d, err := c.store.Get(ctx, docstore.KindCertificates, certID)
	if err != nil {
		return domain.Certificate{}, err
	}
	var cert domain.Certificate
	if err := json.Unmarshal(d.Doc, &cert); err != nil {
		return domain.Certificate{}, fmt.Errorf("decode certificate %d: %w", certID, err)
	}
	cert.CertID = d.ID
	return cert, nil
}

// ByStudent returns the current certificate for a student, if any.
func (c Certificates) ByStudent(ctx context.Context, studentID int64) (domain.Certificate, error) {
	certs, err := c.All(ctx)
	if err != nil {
		return domain.Certificate{}, err
	}
	for _, cert := range certs {
		if cert.StudentID == studentID {
			return cert, nil
		}
	}
	return domain.Certificate{}, ErrNotFound
}

func (c Certificates) All(ctx context.Context) ([]domain.Certificate, error) {
	docs, err := c.store.ListAll(ctx, docstore.KindCertificates)
	if err != nil {
		return nil, err
	}
	certs := make([]domain.Certificate, 0, len(docs))
	for _, d := range docs {
		var cert domain.Certificate
		if err := json.Unmarshal(d.Doc, &cert); err != nil {
			return nil, fmt.Errorf("decode certificate %d: %w", d.ID, err)
		}
		cert.CertID = d.ID
		certs = append(certs, cert)
	}
	return certs, nil
}

func (c Certificates) ByIssuer(ctx context.Context, issuer string) ([]domain.Certificate, error) {
	certs, err := c.All(ctx)
	if err != nil {
		return nil, err
	}
	filtered := certs[:0]
	for _, cert := range certs {
		if cert.IssuedBy == issuer {
			filtered = append(filtered, cert)
		}
	}
	return filtered, nil
}

// Upsert writes the certificate at its cert_id, overwriting a prior issuance
// for the same id (the update-policy re-issue path).
func (c Certificates) Upsert(ctx context.Context, cert domain.Certificate) error {
	doc, err := json.Marshal(cert)
	if err != nil {
		return err
	}
	return c.store.Put(ctx, docstore.KindCertificates, cert.CertID, doc)
}

func (c Certificates) DeleteByIssuer(ctx context.Context, issuer string) (int, error) {
	return c.store.DeleteWhere(ctx, docstore.KindCertificates, func(d docstore.Document) bool {
		var cert domain.Certificate
		if err := json.Unmarshal(d.Doc, &cert); err != nil {
			return false
		}
		return cert.IssuedBy == issuer
	})
}

// Templates accesses uploaded certificate templates. The public template_id is
// an opaque UUID carried inside the document; the numeric store id is an
// implementation detail.
type Templates struct {
	store docstore.Store
}

func NewTemplates(store docstore.Store) Templates {
	return Templates{store: store}
}

func (t Templates) Insert(ctx context.Context, tpl domain.Template) error {
	doc, err := json.Marshal(tpl)
	if err != nil {
		return err
	}
	_, err = t.store.Insert(ctx, docstore.KindTemplates, doc)
	return err
}

func (t Templates) ByTemplateID(ctx context.Context, templateID string) (domain.Template, error) {
	all, err := t.All(ctx)
	if err != nil {
		return domain.Template{}, err
	}
	for _, tpl := range all {
		if tpl.TemplateID == templateID {
			return tpl, nil
		}
	}
	return domain.Template{}, ErrNotFound
}

func (t Templates) All(ctx context.Context) ([]domain.Template, error) {
	docs, err := t.store.ListAll(ctx, docstore.KindTemplates)
	if err != nil {
		return nil, err
	}
	templates := make([]domain.Template, 0, len(docs))
	for _, d := range docs {
		var tpl domain.Template
		if err := json.Unmarshal(d.Doc, &tpl); err != nil {
			return nil, fmt.Errorf("decode template %d: %w", d.ID, err)
		}
		templates = append(templates, tpl)
	}
	return templates, nil
}

func (t Templates) ByUploader(ctx context.Context, issuer string) ([]domain.Template, error) {
	all, err := t.All(ctx)
	if err != nil {
		return nil, err
	}
	filtered := all[:0]
	for _, tpl := range all {
		if tpl.UploadedBy == issuer {
			filtered = append(filtered, tpl)
		}
	}
	return filtered, nil
}
