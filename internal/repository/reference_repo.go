package repository

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/machinemate/machinemate/internal/domain"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

const scrollBatchSize = 256

// QdrantConnectionConfig holds configuration for the Qdrant connection.
type QdrantConnectionConfig struct {
	Host       string
	Port       int
	Collection string
	APIKey     string // Qdrant Cloud API Key (enables TLS automatically)
	UseTLS     bool   // Explicitly enable TLS without API Key
}

// apiKeyInterceptor creates a unary interceptor that adds API key to metadata
func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// ReferenceRepository loads curated reference-photo embeddings from a
// Qdrant collection. Each point carries the image embedding as its vector
// and a payload tagging the vocabulary label (and optionally the exact
// catalog machine) the photo depicts.
type ReferenceRepository struct {
	conn           *grpc.ClientConn
	pointsClient   pb.PointsClient
	collectionName string
}

// NewReferenceRepository creates a new ReferenceRepository.
// Supports both local Qdrant (insecure) and Qdrant Cloud (TLS + API Key).
func NewReferenceRepository(cfg *QdrantConnectionConfig) (*ReferenceRepository, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	var opts []grpc.DialOption

	useTLS := cfg.UseTLS || cfg.APIKey != ""
	if useTLS {
		tlsConfig := &tls.Config{
			MinVersion: tls.VersionTLS13,
		}
		creds := credentials.NewTLS(tlsConfig)
		opts = append(opts, grpc.WithTransportCredentials(creds))

		if cfg.APIKey != "" {
			opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
		}
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	return &ReferenceRepository{
		conn:           conn,
		pointsClient:   pb.NewPointsClient(conn),
		collectionName: cfg.Collection,
	}, nil
}

// Close closes the gRPC connection.
func (r *ReferenceRepository) Close() error {
	return r.conn.Close()
}

// ListAll scrolls the whole collection and returns every reference
// embedding. Points without a label_id payload are skipped: a reference
// that cannot be attributed to a label cannot sharpen anything.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - []domain.ReferenceEmbedding: all usable reference embeddings.
//   - error: non-nil if the scroll fails.
func (r *ReferenceRepository) ListAll(ctx context.Context) ([]domain.ReferenceEmbedding, error) {
	var refs []domain.ReferenceEmbedding
	var offset *pb.PointId

	for {
		req := &pb.ScrollPoints{
			CollectionName: r.collectionName,
			Limit:          scrollLimit(),
			Offset:         offset,
			WithPayload: &pb.WithPayloadSelector{
				SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
			},
			WithVectors: &pb.WithVectorsSelector{
				SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true},
			},
		}

		resp, err := r.pointsClient.Scroll(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("failed to scroll reference points: %w", err)
		}

		for _, point := range resp.Result {
			ref, ok := parseReferencePoint(point)
			if ok {
				refs = append(refs, ref)
			}
		}

		if resp.NextPageOffset == nil || len(resp.Result) == 0 {
			break
		}
		offset = resp.NextPageOffset
	}

	return refs, nil
}

func scrollLimit() *uint32 {
	limit := uint32(scrollBatchSize)
	return &limit
}

func parseReferencePoint(point *pb.RetrievedPoint) (domain.ReferenceEmbedding, bool) {
	var ref domain.ReferenceEmbedding

	if point.Payload == nil {
		return ref, false
	}
	if v, ok := point.Payload["label_id"]; ok {
		ref.LabelID = v.GetStringValue()
	}
	if ref.LabelID == "" {
		return ref, false
	}
	if v, ok := point.Payload["machine_id"]; ok {
		ref.MachineID = v.GetStringValue()
	}

	vectors := point.GetVectors()
	if vectors == nil {
		return ref, false
	}
	vector := vectors.GetVector()
	if vector == nil || len(vector.Data) == 0 {
		return ref, false
	}
	ref.Vector = vector.Data

	return ref, true
}
