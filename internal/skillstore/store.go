// Package skillstore 依使用者保存已註冊的 API 與其 skills
package skillstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/asccclass/skillbridge/internal/kvstore"
	"github.com/asccclass/skillbridge/internal/secret"
	"github.com/asccclass/skillbridge/internal/skillloader"
)

const keyPrefix = "skills:"

// ErrAPINotFound 表示使用者沒有註冊該 apiName
var ErrAPINotFound = errors.New("api not found")

// RegisteredAPI 是單一使用者擁有的一組 skills
type RegisteredAPI struct {
	APIName         string                `json:"apiName"`
	BaseURL         string                `json:"baseUrl"`
	EncryptedAPIKey string                `json:"encryptedApiKey,omitempty"`
	Skills          []skillloader.Skill   `json:"skills"`
	RegisteredAt    time.Time             `json:"registeredAt"`
	Metadata        *skillloader.Metadata `json:"metadata,omitempty"`
}

// UserSkillSet 是儲存單位：一個使用者一個 key
type UserSkillSet struct {
	UserID string                    `json:"userId"`
	APIs   map[string]*RegisteredAPI `json:"apis"`
}

// APISummary 是 list 路由回傳的摘要
type APISummary struct {
	APIName      string                `json:"apiName"`
	BaseURL      string                `json:"baseUrl"`
	SkillCount   int                   `json:"skillCount"`
	SkillNames   []string              `json:"skillNames"`
	RegisteredAt time.Time             `json:"registeredAt"`
	Metadata     *skillloader.Metadata `json:"metadata,omitempty"`
}

// Shadowing 表示兩個 API 有同名 skill；派送時 Winner (較晚註冊) 的版本生效
type Shadowing struct {
	Skill  string
	Winner string
	Loser  string
}

// Store 以 kvstore 為後端
type Store struct {
	kv     kvstore.Store
	sealer *secret.Sealer
	locks  *kvstore.Locker
	now    func() time.Time
}

// New 建立 Store；sealer 為 nil 時使用純混淆模式
func New(kv kvstore.Store, sealer *secret.Sealer) *Store {
	if sealer == nil {
		sealer, _ = secret.NewSealer("")
	}
	return &Store{kv: kv, sealer: sealer, locks: kvstore.NewLocker(), now: time.Now}
}

func userKey(userID string) string { return keyPrefix + userID }

// Load 讀取使用者的 skill 集合；尚未註冊過時回傳空集合
func (s *Store) Load(ctx context.Context, userID string) (*UserSkillSet, error) {
	data, err := s.kv.Get(ctx, userKey(userID))
	if errors.Is(err, kvstore.ErrNotFound) {
		return &UserSkillSet{UserID: userID, APIs: map[string]*RegisteredAPI{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load skills for %s: %w", userID, err)
	}
	var set UserSkillSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("decode skills for %s: %w", userID, err)
	}
	if set.APIs == nil {
		set.APIs = map[string]*RegisteredAPI{}
	}
	if set.UserID == "" {
		set.UserID = userID
	}
	return &set, nil
}

func (s *Store) save(ctx context.Context, set *UserSkillSet) error {
	data, err := json.Marshal(set)
	if err != nil {
		return err
	}
	if err := s.kv.Put(ctx, userKey(set.UserID), data); err != nil {
		return fmt.Errorf("save skills for %s: %w", set.UserID, err)
	}
	return nil
}

// Register 新增或完整取代同名的 API
func (s *Store) Register(ctx context.Context, userID, apiName string, compiled *skillloader.Compiled, apiKey string) (*RegisteredAPI, error) {
	sealed, err := s.sealer.Seal(apiKey)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	set, err := s.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	api := &RegisteredAPI{
		APIName:         apiName,
		BaseURL:         compiled.BaseURL,
		EncryptedAPIKey: sealed,
		Skills:          compiled.Skills,
		RegisteredAt:    s.now().UTC(),
		Metadata:        compiled.Metadata,
	}
	set.APIs[apiName] = api
	if err := s.save(ctx, set); err != nil {
		return nil, err
	}
	for _, sh := range set.Shadowed() {
		if sh.Winner == apiName {
			log.Warnf("[Skills] user=%s skill %q 來自 %s，覆蓋了 %s 的同名 skill", userID, sh.Skill, sh.Winner, sh.Loser)
		}
	}
	return api, nil
}

// Get 取得單一 API
func (s *Store) Get(ctx context.Context, userID, apiName string) (*RegisteredAPI, error) {
	set, err := s.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	api, ok := set.APIs[apiName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAPINotFound, apiName)
	}
	return api, nil
}

// Delete 移除 API；不存在時回傳 ErrAPINotFound
func (s *Store) Delete(ctx context.Context, userID, apiName string) error {
	unlock := s.locks.Lock(userID)
	defer unlock()

	set, err := s.Load(ctx, userID)
	if err != nil {
		return err
	}
	if _, ok := set.APIs[apiName]; !ok {
		return fmt.Errorf("%w: %s", ErrAPINotFound, apiName)
	}
	delete(set.APIs, apiName)
	return s.save(ctx, set)
}

// List 依註冊時間回傳所有 API 摘要
func (s *Store) List(ctx context.Context, userID string) ([]APISummary, error) {
	set, err := s.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	apis := set.Ordered()
	out := make([]APISummary, 0, len(apis))
	for _, api := range apis {
		names := make([]string, len(api.Skills))
		for i, sk := range api.Skills {
			names[i] = sk.Name
		}
		out = append(out, APISummary{
			APIName:      api.APIName,
			BaseURL:      api.BaseURL,
			SkillCount:   len(api.Skills),
			SkillNames:   names,
			RegisteredAt: api.RegisteredAt,
			Metadata:     api.Metadata,
		})
	}
	return out, nil
}

// APIKey 解開儲存的 API Key
func (s *Store) APIKey(api *RegisteredAPI) (string, error) {
	if api == nil {
		return "", nil
	}
	return s.sealer.Open(api.EncryptedAPIKey)
}

// Ordered 依註冊時間 (同時間再依名稱) 排列 API
func (set *UserSkillSet) Ordered() []*RegisteredAPI {
	apis := make([]*RegisteredAPI, 0, len(set.APIs))
	for _, api := range set.APIs {
		apis = append(apis, api)
	}
	sort.SliceStable(apis, func(i, j int) bool {
		if !apis[i].RegisteredAt.Equal(apis[j].RegisteredAt) {
			return apis[i].RegisteredAt.Before(apis[j].RegisteredAt)
		}
		return apis[i].APIName < apis[j].APIName
	})
	return apis
}

// Shadowed 依 API 順序找出跨 API 的同名 skills
func (set *UserSkillSet) Shadowed() []Shadowing {
	owner := make(map[string]string)
	var out []Shadowing
	for _, api := range set.Ordered() {
		for _, sk := range api.Skills {
			if prev, ok := owner[sk.Name]; ok && prev != api.APIName {
				out = append(out, Shadowing{Skill: sk.Name, Winner: api.APIName, Loser: prev})
			}
			owner[sk.Name] = api.APIName
		}
	}
	return out
}
