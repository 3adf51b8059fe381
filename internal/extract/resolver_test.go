package extract

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func structuredPage(blob string) string {
	return fmt.Sprintf(`<html><body>
		<script id="__NEXT_DATA__" type="application/json">%s</script>
	</body></html>`, blob)
}

func TestResolveStructuredGridShape(t *testing.T) {
	t.Parallel()

	page := structuredPage(`{
		"props": {"pageProps": {"initialState": {"searchResult": {"itemGrid": {"items": [
			{"id": "m111", "name": "Nintendo Switch 本体", "price": 24800,
			 "thumbnailUrl": "https://static.mercari.com/m111.jpg",
			 "status": "sold_out", "numLikes": 12},
			{"id": "m222", "price": 5000}
		]}}}}}
	}`)

	products, stats, err := NewResolver(nil).Resolve(page, "switch")
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "searchResult.itemGrid.items", stats.Shape)
	assert.Equal(t, 1, stats.Dropped, "entry without a title must be dropped")

	got := products[0]
	assert.Equal(t, "m111", got.ID)
	assert.Equal(t, "Nintendo Switch 本体", got.Title)
	assert.Equal(t, 24800, got.Price)
	assert.Equal(t, "https://jp.mercari.com/item/m111", got.URL)
	assert.Equal(t, "https://static.mercari.com/m111.jpg", got.ImageURL)
	assert.True(t, got.Sold)
	assert.Equal(t, 12, got.LikeCount)
	assert.Equal(t, []string{"switch"}, got.Keywords)
}

func TestResolveStructuredFieldAliases(t *testing.T) {
	t.Parallel()

	page := structuredPage(`{
		"props": {"pageProps": {"items": [
			{"itemId": "m333", "itemName": "レゴ ミニフィグ", "price": {"value": 1500},
			 "thumbnails": ["https://static.mercari.com/m333.jpg"],
			 "url": "/item/m333"}
		]}}
	}`)

	products, stats, err := NewResolver(nil).Resolve(page, "")
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "pageProps.items", stats.Shape)

	got := products[0]
	assert.Equal(t, "m333", got.ID)
	assert.Equal(t, "レゴ ミニフィグ", got.Title)
	assert.Equal(t, 1500, got.Price, "object-shaped price must resolve through its value field")
	assert.Equal(t, "https://static.mercari.com/m333.jpg", got.ImageURL)
	assert.Equal(t, "https://jp.mercari.com/item/m333", got.URL)
	assert.Empty(t, got.Keywords)
}

func TestResolveStructuredEntitiesShape(t *testing.T) {
	t.Parallel()

	page := structuredPage(`{
		"props": {"pageProps": {"initialState": {"entities": {"items": {
			"m444": {"id": "m444", "name": "ポケモンカード", "price": "¥980"}
		}}}}}
	}`)

	products, stats, err := NewResolver(nil).Resolve(page, "")
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "entities.items", stats.Shape)
	assert.Equal(t, 980, products[0].Price, "string price must go through text parsing")
}

func TestResolveMarkupContainerCascade(t *testing.T) {
	t.Parallel()

	page := `<html><body><ul>
		<li data-testid="item-cell">
			<a href="/item/m111">
				<img src="https://static.mercari.com/m111.jpg" alt="">
				<h3>Nintendo Switch 本体</h3>
				<span class="price">¥24,800</span>
				<span class="like-count">12</span>
			</a>
		</li>
		<li data-testid="item-cell">
			<a href="/item/m222">
				<h3>ジャンク Switch</h3>
				<span class="price">1,500円</span>
				<span>売り切れ</span>
			</a>
		</li>
		<li data-testid="item-cell">
			<a href="/item/m333"><h3>no price here</h3></a>
		</li>
	</ul></body></html>`

	products, stats, err := NewResolver(nil).Resolve(page, "switch")
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "markup:item-cell-li", stats.Shape)
	assert.Equal(t, 1, stats.Dropped, "priceless entry must be dropped")

	first := products[0]
	assert.Equal(t, "m111", first.ID)
	assert.Equal(t, "Nintendo Switch 本体", first.Title)
	assert.Equal(t, 24800, first.Price)
	assert.Equal(t, "https://jp.mercari.com/item/m111", first.URL)
	assert.Equal(t, "https://static.mercari.com/m111.jpg", first.ImageURL)
	assert.Equal(t, 12, first.LikeCount)
	assert.False(t, first.Sold)

	second := products[1]
	assert.Equal(t, "m222", second.ID)
	assert.Equal(t, 1500, second.Price)
	assert.True(t, second.Sold)
}

func TestResolveMarkupDoesNotMixContainerCandidates(t *testing.T) {
	t.Parallel()

	// the legacy items-box element must be ignored once a higher
	// priority candidate matched anywhere on the page
	page := `<html><body>
		<li data-testid="item-cell">
			<a href="/item/m111"><h3>現行レイアウト</h3><span class="price">¥1,000</span></a>
		</li>
		<section class="items-box">
			<a href="/item/m999"><span class="items-box-name">旧レイアウト</span>
			<span class="items-box-price">¥2,000</span></a>
		</section>
	</body></html>`

	products, stats, err := NewResolver(nil).Resolve(page, "")
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "markup:item-cell-li", stats.Shape)
	assert.Equal(t, "m111", products[0].ID)
}

func TestResolveMarkupLegacyItemsBox(t *testing.T) {
	t.Parallel()

	page := `<html><body>
		<section class="items-box">
			<a href="/item/m555">
				<span class="items-box-name">たまごっち 新品</span>
				<span class="items-box-price">¥3,200</span>
			</a>
		</section>
	</body></html>`

	products, stats, err := NewResolver(nil).Resolve(page, "")
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "markup:items-box-section", stats.Shape)
	assert.Equal(t, "たまごっち 新品", products[0].Title)
	assert.Equal(t, 3200, products[0].Price)
}

func TestResolveLinkScanFallback(t *testing.T) {
	t.Parallel()

	page := `<html><body>
		<a href="/item/m777"></a>
		<a href="/item/m777"></a>
		<a href="https://jp.mercari.com/item/m888"></a>
		<a href="/about"></a>
	</body></html>`

	products, stats, err := NewResolver(nil).Resolve(page, "")
	require.NoError(t, err)
	require.Len(t, products, 2, "duplicate and non-item links must be skipped")
	assert.Equal(t, "markup:link-scan", stats.Shape)

	assert.Equal(t, "m777", products[0].ID)
	assert.Equal(t, "https://jp.mercari.com/item/m777", products[0].URL)
	assert.Empty(t, products[0].Title, "link-scan records carry only what the link shows")
	assert.Zero(t, products[0].Price)
	assert.Equal(t, "m888", products[1].ID)
}

func TestResolveEmptyPageIsSoftResult(t *testing.T) {
	t.Parallel()

	products, stats, err := NewResolver(nil).Resolve("<html><body><p>検索結果なし</p></body></html>", "")
	require.NoError(t, err, "an unrecognized page is not an error")
	assert.Empty(t, products)
	assert.Empty(t, stats.Shape)
}

func TestResolveStructuredWinsOverMarkup(t *testing.T) {
	t.Parallel()

	page := `<html><body>
		<script id="__NEXT_DATA__" type="application/json">{
			"props": {"pageProps": {"items": [
				{"id": "m100", "name": "構造化データ側", "price": 500}
			]}}
		}</script>
		<li data-testid="item-cell">
			<a href="/item/m200"><h3>DOM側</h3><span class="price">¥900</span></a>
		</li>
	</body></html>`

	products, _, err := NewResolver(nil).Resolve(page, "")
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "m100", products[0].ID)
}
