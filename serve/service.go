package serve

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	graphqa "github.com/creditrisk/graphqa"
	"github.com/creditrisk/graphqa/queue"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "graphqa.v1.QuestionService"

// AskMethod is the full method name of Ask.
const AskMethod = "/" + ServiceName + "/Ask"

// Asker answers one question. *graphqa.Session implements it.
type Asker interface {
	AskQuestion(ctx context.Context, question string) graphqa.Answer
}

// QuestionServer is the server API of graphqa.v1.QuestionService.
//
// Ask takes a Struct with a "question" string and an optional "timeout_ms"
// number, and returns the answer in the queue.Reply JSON layout. Pipeline
// failures are reported in the reply's status and error fields; only
// malformed requests fail the RPC.
type QuestionServer interface {
	Ask(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// RegisterQuestionServer registers srv on s.
func RegisterQuestionServer(s grpc.ServiceRegistrar, srv QuestionServer) {
	s.RegisterService(&questionServiceDesc, srv)
}

var questionServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*QuestionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ask", Handler: askHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "graphqa/v1/question.proto",
}

func askHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(QuestionServer).Ask(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: AskMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(QuestionServer).Ask(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// questionService adapts an Asker to QuestionServer.
type questionService struct {
	asker Asker
}

// NewQuestionServer returns a QuestionServer answering with asker.
func NewQuestionServer(asker Asker) QuestionServer {
	return &questionService{asker: asker}
}

func (s *questionService) Ask(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	question := strings.TrimSpace(fields["question"].GetStringValue())
	if question == "" {
		return nil, status.Error(codes.InvalidArgument, "question is required")
	}

	if ms := fields["timeout_ms"].GetNumberValue(); ms > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(ms)*time.Millisecond)
		defer cancel()
	}

	started := time.Now()
	reply := s.asker.AskQuestion(ctx, question).Reply()
	reply.StartedAt = started.UnixMilli()
	reply.CompletedAt = time.Now().UnixMilli()

	out, err := replyToStruct(reply)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode reply: %v", err)
	}
	return out, nil
}

func replyToStruct(reply queue.Reply) (*structpb.Struct, error) {
	data, err := json.Marshal(reply)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

func structToReply(s *structpb.Struct) (*queue.Reply, error) {
	data, err := protojson.Marshal(s)
	if err != nil {
		return nil, err
	}
	var reply queue.Reply
	if err := json.Unmarshal(data, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}
