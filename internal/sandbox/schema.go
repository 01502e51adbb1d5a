package sandbox

import (
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// resultSchema 约束 worker stdout 的形状。worker 运行的是不可信
// 代码，它的输出在反序列化之前先过一遍 schema，畸形输出统一归为
// bad_output 而不是在宿主里炸出解码错误。
const resultSchema = `{
  "type": "object",
  "required": ["status"],
  "properties": {
    "status": {"type": "string", "enum": ["ok", "error"]},
    "error": {"type": "string"},
    "outcome": {
      "type": "object",
      "required": ["equity_curve", "trades", "final_cash", "final_equity", "manifest"],
      "properties": {
        "equity_curve": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["timestamp", "cash", "equity"],
            "properties": {
              "timestamp": {"type": "integer"},
              "cash": {"type": "number"},
              "equity": {"type": "number"}
            }
          }
        },
        "trades": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["symbol", "quantity", "submitted_at", "status"],
            "properties": {
              "symbol": {"type": "string", "minLength": 1},
              "quantity": {"type": "number"},
              "price": {"type": "number"},
              "fee": {"type": "number"},
              "submitted_at": {"type": "integer"},
              "filled_at": {"type": "integer"},
              "status": {"type": "string", "enum": ["filled", "unfilled", "rejected"]},
              "reason": {"type": "string"}
            }
          }
        },
        "final_cash": {"type": "number"},
        "final_equity": {"type": "number"},
        "manifest": {
          "type": "object",
          "required": ["hash", "symbols", "ticks"],
          "properties": {
            "hash": {"type": "string", "minLength": 64, "maxLength": 64},
            "symbols": {"type": "array", "items": {"type": "string"}},
            "ticks": {"type": "integer", "minimum": 0}
          }
        }
      }
    }
  },
  "if": {"properties": {"status": {"const": "ok"}}},
  "then": {"required": ["status", "outcome"]},
  "else": {"required": ["status", "error"]}
}`

var compiledResultSchema = mustCompileResultSchema()

func mustCompileResultSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("result.json", strings.NewReader(resultSchema)); err != nil {
		panic(err)
	}
	return compiler.MustCompile("result.json")
}
