package core

// Column names used across the pipeline. Raw column names follow the
// Criteo sponsored-search conversion log; derived column names are
// produced by the feature stages.
const (
	// Raw event columns.
	ColSale                   = "Sale"
	ColSalesAmountInEuro      = "SalesAmountInEuro"
	ColTimeDelayForConversion = "time_delay_for_conversion"
	ColClickTimestamp         = "click_timestamp"
	ColNbClicksOneWeek        = "nb_clicks_1week"
	ColProductPrice           = "product_price"
	ColProductAgeGroup        = "product_age_group"
	ColDeviceType             = "device_type"
	ColAudienceID             = "audience_id"
	ColProductGender          = "product_gender"
	ColProductBrand           = "product_brand"
	ColProductCategory1       = "product_category_1"
	ColProductCategory2       = "product_category_2"
	ColProductCategory3       = "product_category_3"
	ColProductCategory4       = "product_category_4"
	ColProductCategory5       = "product_category_5"
	ColProductCategory6       = "product_category_6"
	ColProductCategory7       = "product_category_7"
	ColProductCountry         = "product_country"
	ColProductID              = "product_id"
	ColProductTitle           = "product_title"
	ColPartnerID              = "partner_id"
	ColUserID                 = "user_id"

	// Derived columns.
	ColHour                    = "hour"
	ColDate                    = "date"
	ColMonth                   = "month"
	ColWeek                    = "week"
	ColDayOfCampaign           = "day_of_campaign"
	ColDayOfWeek               = "day_of_week"
	ColUniqueProductID         = "unique_product_id"
	ColProductDayID            = "product_day_id"
	ColProductDayIndex         = "product_day_index"
	ColTotalSalesAmountInEuro  = "TotalSalesAmountInEuro"
	ColNumberOfClicks          = "NumberOfClicks"
	ColPredictedSalesAmount    = "PredictedSalesAmountInEuro"
	ProductTitlePartPrefix     = "product_title_part_"
)

// EventColumns is the fixed column order of the raw event log. The raw
// TSV carries no header row, so readers apply this schema positionally.
var EventColumns = []string{
	ColSale,
	ColSalesAmountInEuro,
	ColTimeDelayForConversion,
	ColClickTimestamp,
	ColNbClicksOneWeek,
	ColProductPrice,
	ColProductAgeGroup,
	ColDeviceType,
	ColAudienceID,
	ColProductGender,
	ColProductBrand,
	ColProductCategory1,
	ColProductCategory2,
	ColProductCategory3,
	ColProductCategory4,
	ColProductCategory5,
	ColProductCategory6,
	ColProductCategory7,
	ColProductCountry,
	ColProductID,
	ColProductTitle,
	ColPartnerID,
	ColUserID,
}

// ProductColumns are the columns that together identify a product.
var ProductColumns = []string{
	ColProductID,
	ColProductBrand,
	ColProductAgeGroup,
	ColProductGender,
	ColProductCategory1,
	ColProductCategory2,
	ColProductCategory3,
	ColProductCategory4,
	ColProductCategory5,
	ColProductCategory6,
	ColProductCategory7,
	ColProductTitle,
}
