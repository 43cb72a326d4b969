package skillloader

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// supportedMethods 只有這些 HTTP 動詞會產生 skill
var supportedMethods = map[string]bool{
	"get":    true,
	"post":   true,
	"put":    true,
	"patch":  true,
	"delete": true,
}

// 匹配 path 中的 {param}
var pathParamRegex = regexp.MustCompile(`\{([^}/]+)\}`)

// ParseSpecToSkills 將 OpenAPI 3 / Swagger 2 文件轉為 skill 清單
// 只有在輸入不是 spec 形狀時才回傳錯誤，找不到任何 operation 時回傳空清單
func ParseSpecToSkills(root *yaml.Node) (*Compiled, error) {
	root = resolve(root)
	if root == nil || root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: top level must be an object", ErrNotSpec)
	}

	out := &Compiled{
		Skills:   []Skill{},
		BaseURL:  resolveBaseURL(root),
		Metadata: parseMetadata(root),
	}

	paths := mapValue(root, "paths")
	if paths == nil || paths.Tag == "!!null" {
		return out, nil
	}
	if paths.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: paths must be an object", ErrNotSpec)
	}

	for i := 0; i+1 < len(paths.Content); i += 2 {
		path := paths.Content[i].Value
		item := resolve(paths.Content[i+1])
		if item == nil || item.Kind != yaml.MappingNode {
			continue
		}
		shared := parseParameters(mapValue(item, "parameters"))

		for j := 0; j+1 < len(item.Content); j += 2 {
			method := strings.ToLower(item.Content[j].Value)
			if !supportedMethods[method] {
				continue
			}
			op := resolve(item.Content[j+1])
			if op == nil || op.Kind != yaml.MappingNode {
				continue
			}
			out.Skills = append(out.Skills, buildSkill(method, path, op, shared, out.BaseURL))
		}
	}
	return out, nil
}

func buildSkill(method, path string, op *yaml.Node, shared []Parameter, baseURL string) Skill {
	name := scalar(mapValue(op, "operationId"))
	if name == "" {
		name = fmt.Sprintf("%s_%s", method, strings.ReplaceAll(path, "/", "_"))
	}

	upper := strings.ToUpper(method)
	desc := scalar(mapValue(op, "summary"))
	if desc == "" {
		desc = scalar(mapValue(op, "description"))
	}
	if desc == "" {
		desc = fmt.Sprintf("%s %s", upper, path)
	}

	skill := Skill{
		Name:        name,
		OperationID: name,
		Description: desc,
		Method:      upper,
		Path:        path,
		BaseURL:     baseURL,
		Parameters:  mergeParameters(shared, parseParameters(mapValue(op, "parameters"))),
		RequestBody: parseRequestBody(mapValue(op, "requestBody")),
	}

	// path 中每個 {param} 都必須有對應的 path 參數
	for _, m := range pathParamRegex.FindAllStringSubmatch(path, -1) {
		if !skill.HasParam(m[1], InPath) {
			skill.Parameters = append(skill.Parameters, Parameter{
				Name:     m[1],
				In:       InPath,
				Required: true,
				Type:     "string",
			})
		}
	}
	return skill
}

// resolveBaseURL: servers[0].url (OpenAPI 3) → scheme://host+basePath (Swagger 2) → ""
func resolveBaseURL(root *yaml.Node) string {
	if servers := mapValue(root, "servers"); servers != nil && servers.Kind == yaml.SequenceNode && len(servers.Content) > 0 {
		if u := scalar(mapValue(servers.Content[0], "url")); u != "" {
			return u
		}
	}

	host := scalar(mapValue(root, "host"))
	if host == "" {
		return ""
	}
	scheme := "https"
	if schemes := mapValue(root, "schemes"); schemes != nil && schemes.Kind == yaml.SequenceNode && len(schemes.Content) > 0 {
		if s := scalar(resolve(schemes.Content[0])); s != "" {
			scheme = s
		}
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, scalar(mapValue(root, "basePath")))
}

func parseMetadata(root *yaml.Node) *Metadata {
	info := mapValue(root, "info")
	if info == nil || info.Kind != yaml.MappingNode {
		return nil
	}
	return &Metadata{
		Title:       scalar(mapValue(info, "title")),
		Version:     scalar(mapValue(info, "version")),
		Description: scalar(mapValue(info, "description")),
	}
}

func parseParameters(n *yaml.Node) []Parameter {
	if n == nil || n.Kind != yaml.SequenceNode {
		return nil
	}
	var params []Parameter
	for _, raw := range n.Content {
		p := resolve(raw)
		name := scalar(mapValue(p, "name"))
		if name == "" {
			// 未展開的 $ref 或格式錯誤的參數
			continue
		}
		in := scalar(mapValue(p, "in"))
		if in == "" {
			in = InQuery
		}
		typ := scalar(mapValue(mapValue(p, "schema"), "type"))
		if typ == "" {
			typ = scalar(mapValue(p, "type"))
		}
		if typ == "" {
			typ = "string"
		}
		params = append(params, Parameter{
			Name:        name,
			In:          in,
			Required:    boolValue(mapValue(p, "required")),
			Type:        typ,
			Description: scalar(mapValue(p, "description")),
		})
	}
	return params
}

// mergeParameters path 層級參數在前，operation 以相同 name+in 覆蓋
func mergeParameters(shared, own []Parameter) []Parameter {
	if len(shared) == 0 {
		if own == nil {
			return []Parameter{}
		}
		return own
	}
	merged := make([]Parameter, 0, len(shared)+len(own))
	for _, s := range shared {
		overridden := false
		for _, o := range own {
			if o.Name == s.Name && o.In == s.In {
				overridden = true
				break
			}
		}
		if !overridden {
			merged = append(merged, s)
		}
	}
	return append(merged, own...)
}

func parseRequestBody(n *yaml.Node) *RequestBody {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	rb := &RequestBody{Required: boolValue(mapValue(n, "required"))}
	content := mapValue(n, "content")
	if content != nil && content.Kind == yaml.MappingNode && len(content.Content) >= 2 {
		rb.ContentType = content.Content[0].Value
		if schema := mapValue(content.Content[1], "schema"); schema != nil {
			var m map[string]any
			if err := schema.Decode(&m); err == nil {
				rb.Schema = m
			}
		}
	}
	return rb
}
